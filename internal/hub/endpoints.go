package hub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/briefcasehub/briefcase-manager/internal/briefcase"
)

// ResolveChangeSetId implements Capability (spec §4.E step 1, §8 boundary
// behavior: VersionFirst never calls the hub).
func (c *Client) ResolveChangeSetId(ctx context.Context, iModelId briefcase.IModelId, v VersionSpec) (briefcase.ChangeSetId, int, error) {
	if v.Kind == VersionFirst {
		return "", 0, nil
	}

	var resp struct {
		Id    briefcase.ChangeSetId `json:"id"`
		Index int                   `json:"index"`
	}

	q := url.Values{}
	switch v.Kind {
	case VersionLatest:
		q.Set("kind", "latest")
	case VersionNamed:
		q.Set("kind", "named")
		q.Set("name", v.Name)
	case VersionAsOfChangeSet:
		q.Set("kind", "asOf")
		q.Set("changeSetId", string(v.ChangeSetId))
	}

	path := fmt.Sprintf("/imodels/%s/version?%s", url.PathEscape(string(iModelId)), q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", 0, err
	}
	return resp.Id, resp.Index, nil
}

// ListChangeSets implements Capability (spec §6 changeSets.get).
func (c *Client) ListChangeSets(ctx context.Context, q ChangeSetQuery) ([]ChangeSetRecord, error) {
	var resp struct {
		ChangeSets []ChangeSetRecord `json:"changeSets"`
	}

	qs := url.Values{}
	qs.Set("after", string(q.AfterId))
	qs.Set("upTo", string(q.UpToAndIncludingId))
	if q.IncludeDownloadURL {
		qs.Set("downloadUrl", "true")
	}

	path := fmt.Sprintf("/imodels/%s/changesets?%s", url.PathEscape(string(q.IModelId)), qs.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ChangeSets, nil
}

// DownloadChangeSets implements Capability (spec §6 changeSets.download).
func (c *Client) DownloadChangeSets(ctx context.Context, recs []ChangeSetRecord, dir string) ([]string, error) {
	paths := make([]string, len(recs))
	for i, rec := range recs {
		dest := filepath.Join(dir, rec.FileName)
		if _, err := os.Stat(dest); err == nil {
			paths[i] = dest // already downloaded (spec §5 cancellation resume semantics).
			continue
		}
		if err := c.downloadFile(ctx, rec.DownloadURL, dest, nil); err != nil {
			return nil, fmt.Errorf("hub: download changeset %s: %w", rec.Id, err)
		}
		paths[i] = dest
	}
	return paths, nil
}

// NearestCheckpoint implements Capability (spec §6 checkpoints.get).
func (c *Client) NearestCheckpoint(ctx context.Context, q CheckpointQuery) (CheckpointRecord, error) {
	var resp CheckpointRecord

	qs := url.Values{}
	qs.Set("beforeOrAtId", string(q.BeforeOrAtId))
	path := fmt.Sprintf("/imodels/%s/checkpoints/nearest?%s", url.PathEscape(string(q.IModelId)), qs.Encode())

	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return CheckpointRecord{}, err
	}
	return resp, nil
}

// DownloadCheckpoint implements Capability (spec §6 checkpoints.download,
// §5 cancellation). An existing file at path counts as already downloaded.
// A cancelled download leaves its partial data in path+".part", which that
// check does not look at, so a retry downloads again and overwrites the
// .part file.
func (c *Client) DownloadCheckpoint(ctx context.Context, rec CheckpointRecord, path string, progress ProgressFunc) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return c.downloadFile(ctx, rec.DownloadURL, path, progress)
}

func (c *Client) downloadFile(ctx context.Context, downloadURL, dest string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("hub: build download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub: download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{StatusCode: resp.StatusCode, Message: resp.Status, Err: ErrOperationFailed}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("hub: ensure download dir: %w", err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("hub: create partial file: %w", err)
	}

	total := resp.ContentLength
	var written int64
	buf := make([]byte, 64*1024)

	for {
		if err := ctx.Err(); err != nil {
			f.Close()
			return err // UserCancelled path (spec §5): partial file left in place.
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				return fmt.Errorf("hub: write partial file: %w", werr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			return fmt.Errorf("hub: read download body: %w", readErr)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("hub: close partial file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("hub: finalize download: %w", err)
	}
	return nil
}

// CreateChangeSet implements Capability (spec §6 changeSets.create).
func (c *Client) CreateChangeSet(ctx context.Context, iModelId briefcase.IModelId, rec NewChangeSetRecord, filePath string) (CreatedChangeSetRecord, error) {
	var resp CreatedChangeSetRecord
	path := fmt.Sprintf("/imodels/%s/changesets", url.PathEscape(string(iModelId)))
	if err := c.do(ctx, http.MethodPost, path, rec, &resp); err != nil {
		return CreatedChangeSetRecord{}, err
	}
	return resp, nil
}

// BriefcasesForUser implements Capability (spec §4.E PullAndPush step 1).
func (c *Client) BriefcasesForUser(ctx context.Context, iModelId briefcase.IModelId) ([]briefcase.BriefcaseId, error) {
	var resp struct {
		BriefcaseIds []briefcase.BriefcaseId `json:"briefcaseIds"`
	}
	path := fmt.Sprintf("/imodels/%s/briefcases/mine", url.PathEscape(string(iModelId)))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.BriefcaseIds, nil
}

// AcquireBriefcase implements Capability (spec §4.E PullAndPush step 4).
func (c *Client) AcquireBriefcase(ctx context.Context, iModelId briefcase.IModelId) (BriefcaseRecord, error) {
	var resp BriefcaseRecord
	path := fmt.Sprintf("/imodels/%s/briefcases", url.PathEscape(string(iModelId)))
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return BriefcaseRecord{}, err
	}
	return resp, nil
}

// BriefcaseFileId implements Capability (spec §4.E.finishInitialize step 2).
func (c *Client) BriefcaseFileId(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) (string, error) {
	var resp BriefcaseRecord
	path := fmt.Sprintf("/imodels/%s/briefcases/%s", url.PathEscape(string(iModelId)), id)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.FileId, nil
}

// ReleaseBriefcase implements Capability (spec §4.H).
func (c *Client) ReleaseBriefcase(ctx context.Context, iModelId briefcase.IModelId, id briefcase.BriefcaseId) error {
	path := fmt.Sprintf("/imodels/%s/briefcases/%s", url.PathEscape(string(iModelId)), id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// UpdateCodes implements Capability (spec §6 codes.update, §4.G step 6).
func (c *Client) UpdateCodes(ctx context.Context, iModelId briefcase.IModelId, codesJSON []byte, opts CodeUpdateOpts) error {
	body := struct {
		Codes              []byte         `json:"codes"`
		DeniedCodes        []string       `json:"deniedCodes,omitempty"`
		ContinueOnConflict bool           `json:"continueOnConflict"`
	}{Codes: codesJSON, DeniedCodes: opts.DeniedCodes, ContinueOnConflict: opts.ContinueOnConflict}

	path := fmt.Sprintf("/imodels/%s/codes", url.PathEscape(string(iModelId)))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// DeleteAllCodes implements Capability (spec §6 codes.deleteAll).
func (c *Client) DeleteAllCodes(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error {
	path := fmt.Sprintf("/imodels/%s/codes?briefcaseId=%s", url.PathEscape(string(iModelId)), briefcaseId)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// DeleteAllLocks implements Capability (spec §6 locks.deleteAll).
func (c *Client) DeleteAllLocks(ctx context.Context, iModelId briefcase.IModelId, briefcaseId briefcase.BriefcaseId) error {
	path := fmt.Sprintf("/imodels/%s/locks?briefcaseId=%s", url.PathEscape(string(iModelId)), briefcaseId)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateIModel implements Capability (spec §6 iModels.create).
func (c *Client) CreateIModel(ctx context.Context, contextId briefcase.ContextId, name string) (briefcase.IModelId, error) {
	var resp struct {
		IModelId briefcase.IModelId `json:"iModelId"`
	}
	body := struct {
		ContextId briefcase.ContextId `json:"contextId"`
		Name      string              `json:"name"`
	}{ContextId: contextId, Name: name}

	if err := c.do(ctx, http.MethodPost, "/imodels", body, &resp); err != nil {
		return "", err
	}
	return resp.IModelId, nil
}
