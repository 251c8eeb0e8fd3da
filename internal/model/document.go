// Package model 定义了与数据库表对应的 Go 结构体以及检索流程中的领域类型。
package model

import "time"

// Document 对应于数据库中的 documents 表。
// 除 ChunkCount、Summary、ObjectKey 这几个在入库过程中计算的补充字段外，记录写入后不再修改。
type Document struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Title      string    `gorm:"type:varchar(512)" json:"title"`
	Source     string    `gorm:"type:varchar(1024)" json:"source"`
	Filename   string    `gorm:"type:varchar(512)" json:"filename"`
	UploadType string    `gorm:"type:varchar(32)" json:"uploadType"`
	UploadedBy *uint     `gorm:"index" json:"uploadedBy"`
	Text       string    `gorm:"type:longtext" json:"-"`
	ChunkCount int       `gorm:"not null;default:0" json:"chunkCount"`
	Summary    string    `gorm:"type:text" json:"summary"`
	ObjectKey  string    `gorm:"type:varchar(1024)" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是返回给前端的文档信息，不包含全文。
type DocumentDTO struct {
	ID         uint      `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Filename   string    `json:"filename"`
	ChunkCount int       `json:"chunkCount"`
	Summary    string    `json:"summary"`
	CreatedAt  LocalTime `json:"createdAt"`
}

// ToDTO 将 Document 转换为对外展示的 DocumentDTO。
func (d *Document) ToDTO() DocumentDTO {
	return DocumentDTO{
		ID:         d.ID,
		Title:      d.Title,
		Source:     d.Source,
		Filename:   d.Filename,
		ChunkCount: d.ChunkCount,
		Summary:    d.Summary,
		CreatedAt:  LocalTime(d.CreatedAt),
	}
}
