package pipeline

import "strings"

const (
	// ChunkSize 是滑动窗口长度（按字符计）。
	ChunkSize = 1000
	// ChunkOverlap 是相邻窗口的重叠长度，窗口步长为 ChunkSize-ChunkOverlap。
	ChunkOverlap = 200
)

// Chunk 以 ChunkSize 为窗口、ChunkSize-ChunkOverlap 为步长切分文本。
// 不超过 ChunkSize 的文本只产生一个窗口；更长的文本窗口起点为步长的每个倍数
// （小于文本长度），末尾窗口可能短于 ChunkSize。每个窗口去除首尾空白，空窗口被丢弃。
func Chunk(text string) []string {
	return splitText(text, ChunkSize, ChunkOverlap)
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize, chunkOverlap int) []string {
	step := chunkSize - chunkOverlap
	if step <= 0 {
		// 重叠不合法时退化为不重叠切分
		step = chunkSize
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		if chunk := strings.TrimSpace(text); chunk != "" {
			return []string{chunk}
		}
		return nil
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[i:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
