package bootstrap

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"rag-qa-go/internal/model"
	"rag-qa-go/internal/service"
	"rag-qa-go/pkg/log"
)

// FilenameChecker 判断某个文件名的文档是否已经入库。
type FilenameChecker interface {
	ExistsByFilename(filename string) (bool, error)
}

// ImportResult 是单个文件的导入结果。Err 与 Skipped 都为空时 Result 有效。
type ImportResult struct {
	Path    string
	Result  *model.IngestResult
	Skipped bool
	Err     error
}

// ExpandPatterns 展开 glob 模式 (支持 **)，返回去重并排序后的普通文件路径。
// 不含通配符的模式按普通路径处理，目录会展开为其下的全部文件。
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("无效的匹配模式: %s", pattern)
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("展开模式 %s 失败: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				add(m)
				continue
			}
			inner, err := doublestar.FilepathGlob(filepath.Join(m, "**", "*"))
			if err != nil {
				return nil, fmt.Errorf("展开目录 %s 失败: %w", m, err)
			}
			for _, f := range inner {
				if fi, err := os.Stat(f); err == nil && !fi.IsDir() {
					add(f)
				}
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ImportFiles 依次把文件交给标准上传流程入库。单个文件失败不会中断整个导入。
// skipExisting 为 true 时跳过同名文档已存在的文件。onFile 可以为 nil。
func ImportFiles(ctx context.Context, docs service.DocumentService, checker FilenameChecker, paths []string, skipExisting bool, onFile func(ImportResult)) []ImportResult {
	results := make([]ImportResult, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		res := importFile(ctx, docs, checker, path, skipExisting)
		switch {
		case res.Err != nil:
			log.Warnf("[Importer] 导入失败: %s, err=%v", path, res.Err)
		case res.Skipped:
			log.Infof("[Importer] 已存在，跳过: %s", path)
		default:
			log.Infof("[Importer] 导入完成: %s, 文档ID: %d, 分块数: %d", path, res.Result.ID, res.Result.Chunks)
		}
		results = append(results, res)
		if onFile != nil {
			onFile(res)
		}
	}
	return results
}

func importFile(ctx context.Context, docs service.DocumentService, checker FilenameChecker, path string, skipExisting bool) ImportResult {
	res := ImportResult{Path: path}
	name := filepath.Base(path)

	if skipExisting && checker != nil {
		exists, err := checker.ExistsByFilename(name)
		if err != nil {
			res.Err = err
			return res
		}
		if exists {
			res.Skipped = true
			return res
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		res.Err = err
		return res
	}
	res.Result, res.Err = docs.Upload(ctx, service.UploadInput{
		Filename:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Content:     content,
	})
	return res
}

// ImportSeedDir 在启动时导入目录下的全部文件，目录不存在时直接返回。
func ImportSeedDir(ctx context.Context, app *App, dir string) {
	if dir == "" {
		return
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[Importer] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}
	paths, err := ExpandPatterns([]string{dir})
	if err != nil {
		log.Warnf("[Importer] 遍历目录发生错误: %v", err)
		return
	}
	results := ImportFiles(ctx, app.Documents, app.DocRepo, paths, true, nil)
	log.Infof("[Importer] 初始化导入结束, 共处理 %d 个文件", len(results))
}
