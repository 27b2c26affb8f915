package github

import "time"

// Token is a user's linked GitHub account. AccessTokenSealed is never the
// plaintext token.
type Token struct {
	UserID            string    `gorm:"type:varchar(64);primaryKey" json:"-"`
	AccessTokenSealed string    `gorm:"type:text;not null" json:"-"`
	TokenType         string    `gorm:"type:varchar(32)" json:"-"`
	Scope             string    `gorm:"type:varchar(255)" json:"scope"`
	Username          string    `gorm:"type:varchar(255);not null" json:"username"`
	CreatedAt         time.Time `json:"connected_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Token) TableName() string { return "github_tokens" }
