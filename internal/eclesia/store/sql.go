package store

import (
	"context"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type chatRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"index;size:64;not null"`
	Name      string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"index"`
}

func (chatRow) TableName() string { return tableChats }

type messageRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	ChatID    string    `gorm:"index;size:36;not null"`
	Content   string    `gorm:"type:text"`
	Role      string    `gorm:"size:16;not null"`
	Timestamp time.Time `gorm:"index"`
}

func (messageRow) TableName() string { return tableMessages }

type subscriptionRow struct {
	Endpoint  string   `gorm:"primaryKey;size:512"`
	Keys      PushKeys `gorm:"serializer:json;type:text"`
	CreatedAt time.Time
}

func (subscriptionRow) TableName() string { return tableSubscriptions }

// SQL stores rows in a relational database through gorm. It backs
// self-hosted deployments (MySQL) and local development (SQLite).
type SQL struct {
	db *gorm.DB
}

// OpenSQL connects with the named driver ("sqlite" or "mysql") and migrates
// the schema.
func OpenSQL(driver, dsn string) (*SQL, error) {
	db, err := Dial(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQL(db)
}

// Dial opens a gorm connection with the named driver ("sqlite" or "mysql")
// and a silent logger.
func Dial(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Errorf("store: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "store: connect %s", driver)
	}
	return db, nil
}

// NewSQL wraps an open gorm connection and migrates the schema.
func NewSQL(db *gorm.DB) (*SQL, error) {
	if err := db.AutoMigrate(&chatRow{}, &messageRow{}, &subscriptionRow{}); err != nil {
		return nil, errors.Wrap(err, "store: migrate")
	}
	return &SQL{db: db}, nil
}

func (s *SQL) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	var rows []chatRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list chats")
	}

	chats := make([]Chat, 0, len(rows))
	for _, r := range rows {
		chats = append(chats, Chat{ID: r.ID, UserID: r.UserID, Name: r.Name, CreatedAt: r.CreatedAt})
	}
	return chats, nil
}

func (s *SQL) CreateChat(ctx context.Context, chat Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	row := chatRow{ID: chat.ID, UserID: chat.UserID, Name: chat.Name, CreatedAt: chat.CreatedAt}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "create chat")
}

func (s *SQL) RenameChat(ctx context.Context, id, name string) error {
	res := s.db.WithContext(ctx).Model(&chatRow{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return errors.Wrap(res.Error, "rename chat")
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "rename chat %s", id)
	}
	return nil
}

func (s *SQL) DeleteChat(ctx context.Context, id string) error {
	return errors.Wrap(s.db.WithContext(ctx).Where("id = ?", id).Delete(&chatRow{}).Error, "delete chat")
}

func (s *SQL) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("timestamp ASC").
		Order("role DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, Message{
			ID:        r.ID,
			ChatID:    r.ChatID,
			Content:   r.Content,
			Role:      eclesia.Role(r.Role),
			Timestamp: r.Timestamp,
		})
	}
	return msgs, nil
}

func (s *SQL) InsertMessage(ctx context.Context, msg Message) error {
	row := messageRow{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		Role:      string(msg.Role),
		Timestamp: msg.Timestamp,
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "insert message")
}

func (s *SQL) DeleteMessages(ctx context.Context, chatID string) error {
	return errors.Wrap(s.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&messageRow{}).Error, "delete messages")
}

func (s *SQL) ListPushSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	var rows []subscriptionRow
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list push subscriptions")
	}

	subs := make([]PushSubscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, PushSubscription{Endpoint: r.Endpoint, Keys: r.Keys, CreatedAt: r.CreatedAt})
	}
	return subs, nil
}

func (s *SQL) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	row := subscriptionRow{Endpoint: sub.Endpoint, Keys: sub.Keys, CreatedAt: sub.CreatedAt}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"keys"}),
		}).
		Create(&row).Error
	return errors.Wrap(err, "save push subscription")
}
