package geodata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"
)

// ErrAbsent：数据不可用（本地、共享缓存与远端均无法提供）
var ErrAbsent = errors.New("geodata absent")

// Source：按逻辑相对路径（斜杠分隔）取回原始字节
type Source interface {
	Fetch(ctx context.Context, rel string) ([]byte, error)
}

// cleanRel：规范化相对路径并拒绝越界访问
func cleanRel(rel string) (string, error) {
	p := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: bad path %q", ErrAbsent, rel)
	}
	return p, nil
}

// 文档注释：本地目录数据源
// 背景：GeoJSON 以与远端仓库相同的目录结构存放在 Dir 下；远端下载的文件也写回这里。
type DiskSource struct {
	Dir string
}

func (d *DiskSource) file(rel string) (string, error) {
	p, err := cleanRel(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Dir, filepath.FromSlash(p)), nil
}

func (d *DiskSource) Fetch(ctx context.Context, rel string) ([]byte, error) {
	fp, err := d.file(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(fp)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAbsent, rel)
	}
	return b, err
}

// Store：先写临时文件再重命名，避免并发读到半截文件
func (d *DiskSource) Store(rel string, data []byte) error {
	fp, err := d.file(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fp), ".dl-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fp)
}

// DefaultRemoteMaxBytes：远端响应体默认上限（64 MiB，足以容纳最大的子区县文件）
const DefaultRemoteMaxBytes int64 = 64 << 20

// ErrTooLarge：远端响应体超过上限
var ErrTooLarge = errors.New("remote body too large")

// 文档注释：远端镜像数据源（原始文件 HTTP 下载）
// 约束：404 视为不存在（ErrAbsent）；其他非 2xx 视为错误；单次请求受 Client 超时约束，不做重试。
// MaxBytes<=0 时使用 DefaultRemoteMaxBytes。
type RemoteSource struct {
	BaseURL  string
	Client   *http.Client
	MaxBytes int64
}

func NewRemoteSource(baseURL string, timeout time.Duration) *RemoteSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RemoteSource{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

// URL：逐段转义（州名中含空格与 &）
func (r *RemoteSource) URL(rel string) (string, error) {
	p, err := cleanRel(rel)
	if err != nil {
		return "", err
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.Join(segs, "/"), nil
}

func (r *RemoteSource) Fetch(ctx context.Context, rel string) ([]byte, error) {
	u, err := r.URL(rel)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	t0 := time.Now()
	metrics.RemoteRequestsTotal.Inc()
	logger.L().Debug("remote_req", "url", u)
	resp, err := client.Do(req)
	if err != nil {
		logger.L().Error("remote_http_error", "url", u, "err", err)
		metrics.RemoteFailTotal.Inc()
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		metrics.RemoteFailTotal.Inc()
		return nil, fmt.Errorf("%w: %s: remote 404", ErrAbsent, rel)
	}
	if resp.StatusCode/100 != 2 {
		metrics.RemoteFailTotal.Inc()
		return nil, fmt.Errorf("remote %s: status %d", u, resp.StatusCode)
	}
	b, err := readLimited(resp.Body, r.MaxBytes)
	if err != nil {
		logger.L().Error("remote_read_error", "url", u, "err", err)
		metrics.RemoteFailTotal.Inc()
		return nil, err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.RemoteDurationMs.Observe(float64(dur))
	logger.L().Debug("remote_resp", "url", u, "bytes", len(b), "duration_ms", dur)
	return b, nil
}

// readLimited：最多读取 limit 字节；多读一字节用于判断是否超限
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultRemoteMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, limit)
	}
	return b, nil
}
