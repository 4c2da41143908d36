package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/vidmeta/internal/domain"
	"github.com/John-Robertt/vidmeta/internal/infra/fsx"
	"github.com/John-Robertt/vidmeta/internal/nfo"
)

// Suffix 是导出文件名的固定后缀：<site>_video_metadata.json。
const Suffix = "_video_metadata"

// Options 控制导出位置与附加产物。
type Options struct {
	Dir  string
	Stem string // 一般是 profile 的 export_name
	NFO  bool   // 额外写出同名 .nfo
}

// Result 返回实际写出的文件路径（未写出的为空串）。
type Result struct {
	JSONPath string
	NFOPath  string
}

// Error 是导出阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s：写出 %q 失败：%v", e.Code, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FileName 返回 JSON 导出文件名；stem 为空时使用 "page"。
func FileName(stem string) string {
	return baseName(stem) + ".json"
}

func baseName(stem string) string {
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = "page"
	}
	return stem + Suffix
}

// Marshal 把记录序列化为带缩进的 UTF-8 JSON（不转义 & < >，末尾带换行）。
func Marshal(rec domain.VideoMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write 把记录写到 opts.Dir 下（原子写入，同名覆盖）。
func Write(rec domain.VideoMetadata, opts Options) (Result, error) {
	var res Result

	b, err := Marshal(rec)
	if err != nil {
		return res, &Error{Code: domain.ErrCodeExportFailed, Path: FileName(opts.Stem), Err: err}
	}
	name := FileName(opts.Stem)
	if err := fsx.WriteFileAtomic(opts.Dir, name, b); err != nil {
		return res, &Error{Code: domain.ErrCodeExportFailed, Path: filepath.Join(opts.Dir, name), Err: err}
	}
	res.JSONPath = filepath.Join(opts.Dir, name)

	if !opts.NFO {
		return res, nil
	}
	nb, err := nfo.Encode(rec)
	nfoName := baseName(opts.Stem) + ".nfo"
	if err != nil {
		return res, &Error{Code: domain.ErrCodeExportFailed, Path: nfoName, Err: err}
	}
	if err := fsx.WriteFileAtomic(opts.Dir, nfoName, nb); err != nil {
		return res, &Error{Code: domain.ErrCodeExportFailed, Path: filepath.Join(opts.Dir, nfoName), Err: err}
	}
	res.NFOPath = filepath.Join(opts.Dir, nfoName)
	return res, nil
}
