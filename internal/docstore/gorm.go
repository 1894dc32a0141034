package docstore

import (
	"context"
	"errors"
	"time"

	"glassy-social/internal/shared/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct{ store *db.Store }

func NewGormStore(s *db.Store) Store { return &gormStore{store: s} }

// AutoMigrate creates or updates every collection table.
func AutoMigrate(s *db.Store) error {
	return s.Base.AutoMigrate(
		&User{}, &Credential{},
		&Post{}, &Reaction{}, &Comment{},
		&ChatMessage{}, &Report{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *gormStore) db(ctx context.Context) *gorm.DB { return g.store.Base.WithContext(ctx) }

func (g *gormStore) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := g.db(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (g *gormStore) CreateUser(ctx context.Context, u *User) error {
	res := g.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(u)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (g *gormStore) TouchUser(ctx context.Context, id string, at time.Time) error {
	res := g.db(ctx).Model(&User{}).Where("id = ?", id).UpdateColumn("last_active", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) AddPostsCount(ctx context.Context, uid string, delta int64) error {
	res := g.db(ctx).Model(&User{}).Where("id = ?", uid).
		UpdateColumn("posts_count", gorm.Expr("posts_count + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) CreateCredential(ctx context.Context, c *Credential) error {
	res := g.db(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (g *gormStore) GetCredential(ctx context.Context, email string) (*Credential, error) {
	var c Credential
	if err := g.db(ctx).First(&c, "email = ?", email).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (g *gormStore) CreatePost(ctx context.Context, p *Post) error {
	return g.db(ctx).Create(p).Error
}

func (g *gormStore) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	if err := g.db(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// DeletePost removes the post together with its reactions and comments.
func (g *gormStore) DeletePost(ctx context.Context, id string) error {
	return g.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Post{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Delete(&Reaction{}, "post_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&Comment{}, "post_id = ?", id).Error
	})
}

func (g *gormStore) AddPostCounter(ctx context.Context, id string, c Counter, delta int64) error {
	col := string(c)
	res := g.db(ctx).Model(&Post{}).Where("id = ?", id).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *gormStore) RecentPosts(ctx context.Context, limit int) ([]Post, error) {
	var out []Post
	err := g.db(ctx).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (g *gormStore) CreateReport(ctx context.Context, r *Report) error {
	return g.db(ctx).Create(r).Error
}

func (g *gormStore) GetReaction(ctx context.Context, postID, uid string) (*Reaction, error) {
	var r Reaction
	if err := g.db(ctx).First(&r, "post_id = ? AND user_id = ?", postID, uid).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (g *gormStore) PutReaction(ctx context.Context, r *Reaction) error {
	return g.db(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "created_at"}),
	}).Create(r).Error
}

func (g *gormStore) DeleteReaction(ctx context.Context, postID, uid string) error {
	return g.db(ctx).Delete(&Reaction{}, "post_id = ? AND user_id = ?", postID, uid).Error
}

func (g *gormStore) ListReactions(ctx context.Context, postID string) ([]Reaction, error) {
	var out []Reaction
	err := g.db(ctx).Where("post_id = ?", postID).Order("user_id").Find(&out).Error
	return out, err
}

func (g *gormStore) CreateComment(ctx context.Context, c *Comment) error {
	return g.db(ctx).Create(c).Error
}

func (g *gormStore) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	var out []Comment
	err := g.db(ctx).Where("post_id = ?", postID).
		Order("created_at ASC").Order("id ASC").Find(&out).Error
	return out, err
}

func (g *gormStore) CreateMessage(ctx context.Context, m *ChatMessage) error {
	return g.db(ctx).Create(m).Error
}

func (g *gormStore) RecentMessages(ctx context.Context, room string, limit int) ([]ChatMessage, error) {
	var out []ChatMessage
	err := g.db(ctx).Where("room_id = ?", room).
		Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
