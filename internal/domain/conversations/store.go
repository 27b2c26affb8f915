package conversations

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"codegen-app/internal/domain/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNotFound = apperr.New(apperr.KindNotFound, "Conversation not found")

// cleanFilePath maps spellings of the same project file ("./app/page.tsx",
// "/app//page.tsx", "app\page.tsx") onto one stored path. Paths that leave the
// project root are refused.
func cleanFilePath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	p = path.Clean(strings.TrimLeft(p, "/"))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

type FileInput struct {
	FilePath    string
	FileContent string
}

type Detail struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	Files        []File       `json:"files"`
}

// Store scopes every query to the calling user. A conversation owned by
// someone else is indistinguishable from one that does not exist.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Create(ctx context.Context, userID, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	c := Conversation{UserID: userID, Title: title}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to create conversation", err)
	}
	return &c, nil
}

func (s *Store) List(ctx context.Context, userID string) ([]Conversation, error) {
	list := []Conversation{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load conversations", err)
	}
	return list, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (*Conversation, error) {
	return getOwned(s.db.WithContext(ctx), userID, id)
}

func getOwned(db *gorm.DB, userID, id string) (*Conversation, error) {
	var c Conversation
	err := db.Where("id = ? AND user_id = ?", id, userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load conversation", err)
	}
	return &c, nil
}

// Detail returns the conversation with messages in insertion order.
func (s *Store) Detail(ctx context.Context, userID, id string) (*Detail, error) {
	db := s.db.WithContext(ctx)
	c, err := getOwned(db, userID, id)
	if err != nil {
		return nil, err
	}

	d := &Detail{Conversation: *c, Messages: []Message{}, Files: []File{}}
	if err := db.Where("conversation_id = ?", c.ID).Order("created_at ASC").Find(&d.Messages).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load messages", err)
	}
	if err := db.Where("conversation_id = ?", c.ID).Order("file_path ASC").Find(&d.Files).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to load files", err)
	}
	return d, nil
}

func (s *Store) Rename(ctx context.Context, userID, id, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Missing required field: title")
	}

	db := s.db.WithContext(ctx)
	res := db.Model(&Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"title": title, "updated_at": s.now()})
	if res.Error != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "Failed to update conversation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errNotFound
	}
	return getOwned(db, userID, id)
}

// Delete removes the conversation with its messages and files.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotFound
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", id).Delete(&File{}).Error
	})
	if err == nil || apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	return apperr.Wrap(apperr.KindUpstream, "Failed to delete conversation", err)
}

func (s *Store) touch(tx *gorm.DB, userID, id string) error {
	res := tx.Model(&Conversation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("updated_at", s.now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotFound
	}
	return nil
}

func (s *Store) AddMessage(ctx context.Context, userID, id, role, content string) (*Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return nil, apperr.New(apperr.KindInvalidInput, "Invalid role: must be user or assistant")
	}
	if content == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "Missing required field: content")
	}

	m := Message{ConversationID: id, Role: role, Content: content}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touch(tx, userID, id); err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err == nil {
		return &m, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return nil, apperr.Wrap(apperr.KindUpstream, "Failed to save message", err)
}

// UpsertFiles writes files keyed by path. A path repeated in one call keeps
// its last content.
func (s *Store) UpsertFiles(ctx context.Context, userID, id string, in []FileInput) ([]File, error) {
	if len(in) == 0 {
		return nil, apperr.New(apperr.KindInvalidInput, "Missing required field: files")
	}

	byPath := make(map[string]int, len(in))
	rows := make([]File, 0, len(in))
	for _, f := range in {
		if strings.TrimSpace(f.FilePath) == "" {
			return nil, apperr.New(apperr.KindInvalidInput, "Missing required field: file_path")
		}
		clean, ok := cleanFilePath(f.FilePath)
		if !ok {
			return nil, apperr.New(apperr.KindInvalidInput, "Invalid file_path: "+f.FilePath)
		}
		if i, ok := byPath[clean]; ok {
			rows[i].FileContent = f.FileContent
			continue
		}
		byPath[clean] = len(rows)
		rows = append(rows, File{ConversationID: id, FilePath: clean, FileContent: f.FileContent})
	}

	paths := make([]string, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.FilePath)
	}

	saved := []File{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.touch(tx, userID, id); err != nil {
			return err
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "file_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"file_content", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			return err
		}
		return tx.Where("conversation_id = ? AND file_path IN ?", id, paths).
			Order("file_path ASC").
			Find(&saved).Error
	})
	if err == nil {
		return saved, nil
	}
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	return nil, apperr.Wrap(apperr.KindUpstream, "Failed to save files", err)
}
