// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ReindexTask 要求为一个已存储的文档重新切块、向量化并写入索引。
// 向量索引被破坏性重建后，已有文档需要通过该任务恢复检索能力。
type ReindexTask struct {
	DocumentID  uint   `json:"document_id"`
	RequestedBy uint   `json:"requested_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
