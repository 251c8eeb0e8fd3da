package repository

import (
	"gorm.io/gorm"

	"rag-qa-go/internal/model"
)

// DocumentRepository 定义了文档记录的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	FindByID(id uint) (*model.Document, error)
	FindWithPagination(offset, limit int) ([]model.Document, int64, error)
	FindAllIDs() ([]uint, error)
	ExistsByFilename(filename string) (bool, error)
	// UpdateIngestFields 写入入库过程中计算出的补充字段。
	UpdateIngestFields(id uint, chunkCount int, summary string) error
	UpdateObjectKey(id uint, objectKey string) error
	Delete(id uint) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		return nil, notFound(err, "document %d", id)
	}
	return &doc, nil
}

// FindWithPagination 按创建时间倒序分页查询，不加载全文。
func (r *documentRepository) FindWithPagination(offset, limit int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	db := r.db.Model(&model.Document{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Omit("text").Order("id DESC").Offset(offset).Limit(limit).Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *documentRepository) FindAllIDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&model.Document{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *documentRepository) ExistsByFilename(filename string) (bool, error) {
	var count int64
	err := r.db.Model(&model.Document{}).Where("filename = ?", filename).Count(&count).Error
	return count > 0, err
}

func (r *documentRepository) UpdateIngestFields(id uint, chunkCount int, summary string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"chunk_count": chunkCount,
		"summary":     summary,
	}).Error
}

func (r *documentRepository) UpdateObjectKey(id uint, objectKey string) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("object_key", objectKey).Error
}

func (r *documentRepository) Delete(id uint) error {
	res := r.db.Delete(&model.Document{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "document %d", id)
	}
	return nil
}
