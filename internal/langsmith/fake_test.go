package langsmith

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// fakeAPI serves the LangSmith endpoints used by the client from memory.
type fakeAPI struct {
	t *testing.T

	mu       sync.Mutex
	projects []Project
	runs     []Run // root runs, in query order
	children map[string][]Run
	pageSize int // 0 means the requested limit
	failRuns bool

	apiKeys []string
	queries []runQueryBody
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, children: map[string][]Run{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("x-api-key"))

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/sessions":
		name := r.URL.Query().Get("name")
		out := []Project{}
		for _, p := range f.projects {
			if name == "" || p.Name == name {
				out = append(out, p)
			}
		}
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(out) {
			out = out[:limit]
		}
		writeJSON(w, out)

	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs/query":
		if f.failRuns {
			http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
			return
		}
		var body runQueryBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode runs/query body: %v", err)
		}
		f.queries = append(f.queries, body)

		source := f.runs
		if body.ParentRun != "" {
			source = f.children[body.ParentRun]
		}
		start, _ := strconv.Atoi(body.Cursor)
		size := body.Limit
		if f.pageSize > 0 && f.pageSize < size {
			size = f.pageSize
		}
		end := min(start+size, len(source))
		resp := runQueryResponse{Runs: source[start:end], Cursors: map[string]string{}}
		if end < len(source) {
			resp.Cursors["next"] = strconv.Itoa(end)
		}
		writeJSON(w, resp)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v1/runs/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
		for _, run := range f.runs {
			if run.ID == id {
				writeJSON(w, run)
				return
			}
		}
		http.Error(w, `{"detail":"Run not found"}`, http.StatusNotFound)

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeSecrets is a Secrets Manager double keyed by secret id.
type fakeSecrets struct {
	values map[string]string
	err    error
	asked  []string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	f.asked = append(f.asked, id)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[id]
	if !ok {
		return nil, errors.New("ResourceNotFoundException: " + id)
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func (f *fakeSecrets) factory() SecretsFactory {
	return func(context.Context) (SecretsAPI, error) { return f, nil }
}

// envMap stands in for os.Getenv.
func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}
