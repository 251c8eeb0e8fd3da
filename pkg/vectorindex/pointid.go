package vectorindex

import (
	"fmt"

	"github.com/google/uuid"
)

// pointNamespace 是派生点 ID 所用的 UUIDv5 命名空间，更改会使已有点全部失配。
var pointNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e6f-8a7b-9c0d1e2f3a4b")

// PointID 由 (documentID, chunkIndex) 派生确定性的 UUIDv5。
// 两个字段以冒号分隔，不同组合不会拼接出相同的输入。
func PointID(documentID uint, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%d:%d", documentID, chunkIndex))).String()
}
