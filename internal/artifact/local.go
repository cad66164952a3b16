package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/eduramirezh/adk-go/internal/llm"
)

// LocalService persists artifacts under a base directory as
// {base}/{app}/{user}/{session|user}/{filename}/{version}, with a
// {version}.metadata.json sidecar carrying the part kind and MIME type.
type LocalService struct {
	base string
}

func NewLocalService(base string) (*LocalService, error) {
	if strings.TrimSpace(base) == "" {
		return nil, fmt.Errorf("artifact base directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &LocalService{base: base}, nil
}

type localMetadata struct {
	Kind     string `json:"kind"`
	MIMEType string `json:"mime_type,omitempty"`
}

const metadataSuffix = ".metadata.json"

func (s *LocalService) artifactDir(app, user, session, filename string) string {
	return filepath.Join(s.base, app, user, scopeSegment(session, filename), filename)
}

func (s *LocalService) Save(ctx context.Context, app, user, session, filename string, part llm.Part) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return 0, err
	}
	versions, err := s.ListVersions(ctx, app, user, session, filename)
	if err != nil {
		return 0, err
	}
	next := 0
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	dir := s.artifactDir(app, user, session, filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	data, meta := encodePart(part)
	if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(next)), data, 0o644); err != nil {
		return 0, err
	}
	mb, err := json.Marshal(meta)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(next)+metadataSuffix), mb, 0o644); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *LocalService) Load(ctx context.Context, app, user, session, filename string, version *int) (*llm.Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	v := -1
	if version != nil {
		v = *version
	} else {
		versions, err := s.ListVersions(ctx, app, user, session, filename)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, nil
		}
		v = versions[len(versions)-1]
	}
	if v < 0 {
		return nil, nil
	}

	dir := s.artifactDir(app, user, session, filename)
	data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(v)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	// A missing or corrupt sidecar degrades to an untyped blob rather
	// than failing the load.
	meta := localMetadata{Kind: string(llm.PartBlob)}
	if mb, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(v)+metadataSuffix)); err == nil {
		_ = json.Unmarshal(mb, &meta)
	}
	part := decodePart(data, meta)
	return &part, nil
}

func (s *LocalService) ListKeys(ctx context.Context, app, user, session string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if app == "" || user == "" || session == "" {
		return nil, fmt.Errorf("%w: app, user, and session are required", ErrInvalidKey)
	}
	fsys := os.DirFS(s.base)
	var out []string
	for _, scope := range []string{session, "user"} {
		matches, err := doublestar.Glob(fsys, path.Join(app, user, scope, "*"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			out = append(out, path.Base(m))
		}
		if scope == session && session == "user" {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *LocalService) Delete(ctx context.Context, app, user, session, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return err
	}
	return os.RemoveAll(s.artifactDir(app, user, session, filename))
}

func (s *LocalService) ListVersions(ctx context.Context, app, user, session, filename string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkScope(app, user, session, filename); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.artifactDir(app, user, session, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), metadataSuffix) {
			continue
		}
		v, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func encodePart(part llm.Part) ([]byte, localMetadata) {
	meta := localMetadata{Kind: string(part.Kind)}
	if part.Kind == llm.PartBlob && part.Blob != nil {
		meta.MIMEType = part.Blob.MIMEType
		return part.Blob.Data, meta
	}
	meta.MIMEType = "text/plain; charset=utf-8"
	return []byte(part.Text), meta
}

func decodePart(data []byte, meta localMetadata) llm.Part {
	switch llm.PartKind(meta.Kind) {
	case llm.PartText:
		return llm.TextPart(string(data))
	case llm.PartThought:
		return llm.ThoughtPart(string(data))
	default:
		return llm.BlobPart(meta.MIMEType, data)
	}
}
