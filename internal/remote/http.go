package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"panfs/internal/common"
	"panfs/internal/util"
)

// HTTPClient is the mechanical HTTP/JSON binding of Client. One method per
// endpoint; transport-level retries only, no caching and no path logic.
type HTTPClient struct {
	base   string
	cookie string
	http   *http.Client
}

// NewHTTPClient creates a binding against the given API base URL.
// cookie carries the provider session credential.
func NewHTTPClient(base, cookie string) *HTTPClient {
	return &HTTPClient{
		base:   strings.TrimSuffix(base, "/"),
		cookie: cookie,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	State bool            `json:"state"`
	Errno int             `json:"errno"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
	Count int             `json:"count"`
	Path  []wirePathEntry `json:"path"`
}

type wirePathEntry struct {
	CID  jsonUint64 `json:"cid"`
	PID  jsonUint64 `json:"pid"`
	Name string     `json:"name"`
}

// wireItem tolerates the provider's two field layouts: directories carry
// cid/pid, files carry fid/cid (parent).
type wireItem struct {
	FID      jsonUint64 `json:"fid"`
	CID      jsonUint64 `json:"cid"`
	PID      jsonUint64 `json:"pid"`
	Name     string     `json:"n"`
	Size     int64      `json:"s"`
	SHA1     string     `json:"sha"`
	PickCode string     `json:"pc"`
	MTime    jsonUint64 `json:"te"`
	CTime    jsonUint64 `json:"tp"`
	ATime    jsonUint64 `json:"to"`
}

// jsonUint64 decodes ids the provider serializes either as numbers or strings.
type jsonUint64 uint64

func (u *jsonUint64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return err
	}
	*u = jsonUint64(v)
	return nil
}

func (w *wireItem) toItem() Item {
	it := Item{
		ParentID: uint64(w.PID),
		Name:     w.Name,
		Size:     w.Size,
		SHA1:     w.SHA1,
		PickCode: w.PickCode,
		MTime:    epoch(uint64(w.MTime)),
		CTime:    epoch(uint64(w.CTime)),
		ATime:    epoch(uint64(w.ATime)),
	}
	if w.FID == 0 {
		// Directory layout: cid is the id, pid the parent.
		it.ID = uint64(w.CID)
		it.IsDir = true
	} else {
		// File layout: fid is the id, cid the parent.
		it.ID = uint64(w.FID)
		it.ParentID = uint64(w.CID)
	}
	return it
}

func epoch(sec uint64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

// apiError maps provider error numbers into the common taxonomy.
func apiError(env *envelope) error {
	switch env.Errno {
	case 20004:
		return fmt.Errorf("remote: %s: %w", env.Error, common.ErrExists)
	case 90008, 91002:
		return fmt.Errorf("remote: %s: %w", env.Error, common.ErrNotFound)
	case 91005:
		return fmt.Errorf("remote: %s: %w", env.Error, common.ErrPermission)
	default:
		return fmt.Errorf("remote: errno %d: %s: %w", env.Errno, env.Error, common.ErrIO)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, query url.Values, form url.Values) (*envelope, error) {
	env, err := util.RetryWithResult(ctx, func() (*envelope, error) {
		u := c.base + endpoint
		if query != nil {
			u += "?" + query.Encode()
		}
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cookie", c.cookie)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("remote: %s %s: status %d: %w", method, endpoint, resp.StatusCode, common.ErrIO)
		}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, fmt.Errorf("remote: decode %s: %w", endpoint, err)
		}
		return &env, nil
	})
	if err != nil {
		return nil, err
	}
	if !env.State {
		return nil, apiError(env)
	}
	return env, nil
}

// FetchChildren implements Client.
func (c *HTTPClient) FetchChildren(ctx context.Context, dirID uint64, q ListQuery) (*Page, error) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("[Remote] FetchChildren cid=%d offset=%d limit=%d sort=%s", dirID, q.Offset, q.Limit, q.Sort)
	}
	query := url.Values{
		"cid":    {strconv.FormatUint(dirID, 10)},
		"offset": {strconv.Itoa(q.Offset)},
		"limit":  {strconv.Itoa(q.Limit)},
	}
	if q.Sort != "" {
		query.Set("o", string(q.Sort))
	}
	if q.Ascending {
		query.Set("asc", "1")
	} else {
		query.Set("asc", "0")
	}
	if q.MixDirs {
		query.Set("fc_mix", "1")
	}
	env, err := c.do(ctx, http.MethodGet, "/files", query, nil)
	if err != nil {
		return nil, err
	}
	var items []wireItem
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return nil, fmt.Errorf("remote: decode children: %w", err)
	}
	page := &Page{Total: env.Count}
	for i := range items {
		page.Items = append(page.Items, items[i].toItem())
	}
	for _, p := range env.Path {
		page.Ancestors = append(page.Ancestors, PathEntry{
			ID:       uint64(p.CID),
			ParentID: uint64(p.PID),
			Name:     p.Name,
		})
	}
	return page, nil
}

// FetchAttributes implements Client.
func (c *HTTPClient) FetchAttributes(ctx context.Context, id uint64) (*Item, error) {
	query := url.Values{"file_id": {strconv.FormatUint(id, 10)}}
	env, err := c.do(ctx, http.MethodGet, "/category/get", query, nil)
	if err != nil {
		return nil, err
	}
	var w wireItem
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return nil, fmt.Errorf("remote: decode attributes: %w", err)
	}
	it := w.toItem()
	return &it, nil
}

// ResolvePath implements Client.
func (c *HTTPClient) ResolvePath(ctx context.Context, literalPath string) (uint64, error) {
	query := url.Values{"path": {literalPath}}
	env, err := c.do(ctx, http.MethodGet, "/files/getid", query, nil)
	if err != nil {
		return 0, err
	}
	var data struct {
		ID jsonUint64 `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("remote: decode path id: %w", err)
	}
	if data.ID == 0 && literalPath != "/" {
		return 0, fmt.Errorf("remote: path %q: %w", literalPath, common.ErrNotFound)
	}
	return uint64(data.ID), nil
}

// CreateDirectory implements Client.
func (c *HTTPClient) CreateDirectory(ctx context.Context, name string, parentID uint64) (uint64, error) {
	form := url.Values{
		"pid":   {strconv.FormatUint(parentID, 10)},
		"cname": {name},
	}
	env, err := c.do(ctx, http.MethodPost, "/files/add", nil, form)
	if err != nil {
		return 0, err
	}
	var data struct {
		CID jsonUint64 `json:"cid"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("remote: decode new dir id: %w", err)
	}
	return uint64(data.CID), nil
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, ids []uint64) error {
	form := url.Values{}
	for i, id := range ids {
		form.Set(fmt.Sprintf("fid[%d]", i), strconv.FormatUint(id, 10))
	}
	_, err := c.do(ctx, http.MethodPost, "/rb/delete", nil, form)
	return err
}

// Move implements Client.
func (c *HTTPClient) Move(ctx context.Context, ids []uint64, newParentID uint64) error {
	form := url.Values{"pid": {strconv.FormatUint(newParentID, 10)}}
	for i, id := range ids {
		form.Set(fmt.Sprintf("fid[%d]", i), strconv.FormatUint(id, 10))
	}
	_, err := c.do(ctx, http.MethodPost, "/files/move", nil, form)
	return err
}

// Rename implements Client.
func (c *HTTPClient) Rename(ctx context.Context, id uint64, newName string) error {
	return c.RenameBatch(ctx, []RenamePair{{ID: id, NewName: newName}})
}

// RenameBatch implements Client.
func (c *HTTPClient) RenameBatch(ctx context.Context, pairs []RenamePair) error {
	form := url.Values{}
	for _, p := range pairs {
		form.Set(fmt.Sprintf("files_new_name[%d]", p.ID), p.NewName)
	}
	_, err := c.do(ctx, http.MethodPost, "/files/batch_rename", nil, form)
	return err
}

// Copy implements Client.
func (c *HTTPClient) Copy(ctx context.Context, ids []uint64, newParentID uint64) error {
	form := url.Values{"pid": {strconv.FormatUint(newParentID, 10)}}
	for i, id := range ids {
		form.Set(fmt.Sprintf("fid[%d]", i), strconv.FormatUint(id, 10))
	}
	_, err := c.do(ctx, http.MethodPost, "/files/copy", nil, form)
	return err
}

// BeginUpload implements Client. The hash-check round trip happens first; the
// byte source is only opened when the remote reports it needs content.
func (c *HTTPClient) BeginUpload(ctx context.Context, name string, size int64, sha1 string, parentID uint64, src ByteSource) (UploadStatus, error) {
	form := url.Values{
		"filename": {name},
		"filesize": {strconv.FormatInt(size, 10)},
		"filesha1": {sha1},
		"target":   {"U_1_" + strconv.FormatUint(parentID, 10)},
	}
	env, err := c.do(ctx, http.MethodPost, "/upload/init", nil, form)
	if err != nil {
		return 0, err
	}
	var data struct {
		Reuse bool   `json:"reuse"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("remote: decode upload init: %w", err)
	}
	if data.Reuse {
		log.Debugf("[Remote] BeginUpload %q: deduplicated by hash", name)
		return UploadDeduplicated, nil
	}
	body, err := src(ctx)
	if err != nil {
		return 0, fmt.Errorf("remote: open byte source for %q: %w", name, err)
	}
	defer body.Close()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/upload/stream?token="+url.QueryEscape(data.Token), body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Cookie", c.cookie)
	req.ContentLength = size
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("remote: stream upload %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("remote: stream upload %q: status %d: %w", name, resp.StatusCode, common.ErrIO)
	}
	return UploadStreamed, nil
}

// Download implements Client.
func (c *HTTPClient) Download(ctx context.Context, pickCode string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/files/download?pickcode="+url.QueryEscape(pickCode), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", c.cookie)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("remote: pickcode %q: %w", pickCode, common.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("remote: download: status %d: %w", resp.StatusCode, common.ErrIO)
	}
	return resp.Body, nil
}

var _ Client = (*HTTPClient)(nil)
