package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/documentverification/internal/errs"
	"github.com/Lllllllleong/documentverification/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UserStore keeps one record per user. Mutations report how many records
// they touched (0 or 1); storage failures are returned as errors.
type UserStore interface {
	Create(ctx context.Context, userID string, sections map[string]models.DocumentRecord) (string, error)
	// Get returns the user record; when fields are given only those sections
	// (plus userId and lastUpdated) are loaded.
	Get(ctx context.Context, userID string, fields ...string) (*models.UserRecord, error)
	ReplaceSection(ctx context.Context, userID, section string, value models.DocumentRecord) (int, error)
	MergeFields(ctx context.Context, userID string, fields map[string]any) (int, error)
	Delete(ctx context.Context, userID string) (int, error)
	// FindByIdentifier returns the ids of users whose record holds value at path.
	FindByIdentifier(ctx context.Context, path, value string) ([]string, error)
}

func validateUserID(op, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errs.E(errs.KindValidation, op, "userId is required")
	}
	if strings.Contains(userID, "/") {
		return errs.E(errs.KindValidation, op, "userId must not contain '/'").WithDetail(userID)
	}
	return nil
}

// FirestoreUserStore stores each user as a document keyed by user id.
type FirestoreUserStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreUserStore(client *firestore.Client, collection string) *FirestoreUserStore {
	return &FirestoreUserStore{client: client, collection: collection}
}

func (s *FirestoreUserStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userID)
}

func (s *FirestoreUserStore) Create(ctx context.Context, userID string, sections map[string]models.DocumentRecord) (string, error) {
	const op = "UserStore.Create"
	if err := validateUserID(op, userID); err != nil {
		return "", err
	}
	data := map[string]any{
		models.FieldUserID:      userID,
		models.FieldLastUpdated: firestore.ServerTimestamp,
	}
	for name, record := range sections {
		data[name] = map[string]any(record)
	}

	ref := s.doc(userID)
	if _, err := ref.Create(ctx, data); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return "", errs.Wrap(errs.KindDuplicateUser, op, err, "user already exists").WithDetail(userID)
		}
		slog.Error("Failed to create user document", "userId", userID, "error", err)
		return "", errs.Wrap(errs.KindStore, op, err, "failed to create user")
	}
	return ref.ID, nil
}

func (s *FirestoreUserStore) Get(ctx context.Context, userID string, fields ...string) (*models.UserRecord, error) {
	const op = "UserStore.Get"
	if err := validateUserID(op, userID); err != nil {
		return nil, err
	}

	var snap *firestore.DocumentSnapshot
	if len(fields) == 0 {
		var err error
		snap, err = s.doc(userID).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return nil, errs.E(errs.KindNotFound, op, "user not found").WithDetail(userID)
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindStore, op, err, "failed to read user")
		}
	} else {
		paths := append([]string{models.FieldUserID, models.FieldLastUpdated}, fields...)
		docs, err := s.client.Collection(s.collection).
			Where(firestore.DocumentID, "==", s.doc(userID)).
			Select(paths...).
			Limit(1).
			Documents(ctx).GetAll()
		if err != nil {
			return nil, errs.Wrap(errs.KindStore, op, err, "failed to read user")
		}
		if len(docs) == 0 {
			return nil, errs.E(errs.KindNotFound, op, "user not found").WithDetail(userID)
		}
		snap = docs[0]
	}
	return decodeUserRecord(snap.Ref.ID, snap.Data()), nil
}

func (s *FirestoreUserStore) ReplaceSection(ctx context.Context, userID, section string, value models.DocumentRecord) (int, error) {
	const op = "UserStore.ReplaceSection"
	if err := validateUserID(op, userID); err != nil {
		return 0, err
	}
	return s.update(ctx, op, userID, []firestore.Update{
		{FieldPath: firestore.FieldPath{section}, Value: map[string]any(value)},
	})
}

func (s *FirestoreUserStore) MergeFields(ctx context.Context, userID string, fields map[string]any) (int, error) {
	const op = "UserStore.MergeFields"
	if err := validateUserID(op, userID); err != nil {
		return 0, err
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	return s.update(ctx, op, userID, updates)
}

// update applies updates plus a lastUpdated refresh. Update fails with
// NotFound for a missing document, which is reported as 0 records touched.
func (s *FirestoreUserStore) update(ctx context.Context, op, userID string, updates []firestore.Update) (int, error) {
	updates = append(updates, firestore.Update{Path: models.FieldLastUpdated, Value: firestore.ServerTimestamp})
	if _, err := s.doc(userID).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		slog.Error("Failed to update user document", "userId", userID, "op", op, "error", err)
		return 0, errs.Wrap(errs.KindStore, op, err, "failed to update user")
	}
	return 1, nil
}

func (s *FirestoreUserStore) Delete(ctx context.Context, userID string) (int, error) {
	const op = "UserStore.Delete"
	if err := validateUserID(op, userID); err != nil {
		return 0, err
	}
	if _, err := s.doc(userID).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, errs.Wrap(errs.KindStore, op, err, "failed to delete user")
	}
	return 1, nil
}

func (s *FirestoreUserStore) FindByIdentifier(ctx context.Context, path, value string) ([]string, error) {
	docs, err := s.client.Collection(s.collection).
		Where(path, "==", value).
		Select().
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.Wrap(errs.KindStore, "UserStore.FindByIdentifier", err, fmt.Sprintf("failed to query %s", path))
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Ref.ID)
	}
	return ids, nil
}

var sectionNames = func() map[string]bool {
	m := make(map[string]bool, len(models.AllDocTypes))
	for _, t := range models.AllDocTypes {
		m[string(t)] = true
	}
	return m
}()

// decodeUserRecord splits a stored document into its sections and the
// remaining top-level fields.
func decodeUserRecord(id string, data map[string]any) *models.UserRecord {
	rec := &models.UserRecord{
		UserID:   id,
		Sections: map[string]models.DocumentRecord{},
		Extra:    map[string]any{},
	}
	for k, v := range data {
		switch {
		case k == models.FieldUserID:
			if s, ok := v.(string); ok && s != "" {
				rec.UserID = s
			}
		case k == models.FieldLastUpdated:
			if t, ok := v.(time.Time); ok {
				rec.LastUpdated = t
			}
		case sectionNames[k]:
			if m, ok := v.(map[string]any); ok {
				rec.Sections[k] = models.DocumentRecord(m)
			}
		default:
			rec.Extra[k] = v
		}
	}
	return rec
}
