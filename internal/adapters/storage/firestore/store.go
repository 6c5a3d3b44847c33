package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store. An empty databaseID selects the
// project's default database.
func NewStore(ctx context.Context, projectID, databaseID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	var (
		client *firestore.Client
		err    error
	)
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol(serverID domain.ServerID) *firestore.CollectionRef {
	return s.client.Collection("servers").Doc(string(serverID)).Collection("sessions")
}

func (s *Store) sessionDoc(key domain.SessionKey) (*firestore.DocumentRef, error) {
	if key.ServerID == "" || key.UserID == "" {
		return nil, fmt.Errorf("incomplete session key %q", key.String())
	}
	return s.sessionsCol(key.ServerID).Doc(string(key.UserID)), nil
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	ref, err := s.sessionDoc(session.Key)
	if err != nil {
		return err
	}

	if _, err := ref.Create(ctx, toSessionDoc(session)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return domain.ErrSessionAlreadyExists
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) ReplaceHistory(ctx context.Context, key domain.SessionKey, history []domain.Message, updatedAt domain.Timestamp) error {
	ref, err := s.sessionDoc(key)
	if err != nil {
		return err
	}

	// Update fails with NotFound instead of creating the document.
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "history", Value: toMessageDocs(history)},
		{Path: "updated_at", Value: updatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore ReplaceHistory: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	ref, err := s.sessionDoc(key)
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}

	return doc.toDomain(key)
}

func (s *Store) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	ref, err := s.sessionDoc(key)
	if err != nil {
		return err
	}

	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ListSessionsByServer returns every session stored under one server.
func (s *Store) ListSessionsByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Session, error) {
	if serverID == "" {
		return nil, errors.New("server id is required")
	}

	iter := s.sessionsCol(serverID).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Session
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListSessionsByServer: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}

		sess, err := doc.toDomain(domain.SessionKey{ServerID: serverID, UserID: domain.UserID(snap.Ref.ID)})
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
