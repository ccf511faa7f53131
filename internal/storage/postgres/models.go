package postgres

import (
	"time"

	"github.com/google/uuid"
)

// JSONB stores raw JSON. Maps to jsonb on PostgreSQL and TEXT on SQLite.
type JSONB []byte

// UserModel maps to the "chatops_users" table: one row per user+group
// membership. Loaded by the provisioning pipeline, read-only here.
type UserModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"column:userid;not null;index:idx_users_userid"`
	GroupName string `gorm:"not null;index"`
	CreatedAt time.Time
}

func (UserModel) TableName() string { return "chatops_users" }

// AppGroupModel maps to the "chatops_app_groups" table: which application
// name prefixes belong to which group.
type AppGroupModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Application string `gorm:"not null;index"`
	GroupName   string `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (AppGroupModel) TableName() string { return "chatops_app_groups" }

// OrgSpaceModel maps to the "chatops_org_space" table: where each group's
// applications are deployed.
type OrgSpaceModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	GroupName string `gorm:"not null;index"`
	Site      string `gorm:"column:cf_site;not null"`
	Org       string `gorm:"column:cf_organization;not null"`
	Space     string `gorm:"column:cf_space;not null"`
	CreatedAt time.Time
}

func (OrgSpaceModel) TableName() string { return "chatops_org_space" }

// TaskModel maps to the "chatops_tasks" table: the operation catalog
// surfaced in the knowledge context. Enabled is 'Y'/'N' as loaded by the
// provisioning pipeline.
type TaskModel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	TaskName string `gorm:"not null"`
	TaskType string `gorm:"not null;index"`
	Enabled  string `gorm:"not null;default:'Y'"`
}

func (TaskModel) TableName() string { return "chatops_tasks" }

// ConversationModel maps to the "conversations" table.
type ConversationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;index:idx_conv_user"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ConversationModel) TableName() string { return "conversations" }

// ConversationMessageModel maps to the "conversation_messages" table.
type ConversationMessageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_convmsg_seq"`
	SeqNum         int       `gorm:"not null;index:idx_convmsg_seq"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text"`
	ContentBlocks  JSONB     `gorm:"type:jsonb"`
	TokenEstimate  int       `gorm:"not null;default:0"`
	CreatedAt      time.Time
}

func (ConversationMessageModel) TableName() string { return "conversation_messages" }
