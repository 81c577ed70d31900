package github

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDependentCount(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   int
		ok     bool
	}{
		{
			name:   "count with thousands separator",
			status: http.StatusOK,
			body:   `<a href="#">` + "\n      1,234\n      Repositories\n" + `</a>`,
			want:   1234,
			ok:     true,
		},
		{
			name:   "plain count",
			status: http.StatusOK,
			body:   "42 Repositories",
			want:   42,
			ok:     true,
		},
		{
			name:   "layout changed",
			status: http.StatusOK,
			body:   "<html>nothing to see</html>",
			ok:     false,
		},
		{
			name:   "non-200 response",
			status: http.StatusNotFound,
			body:   "",
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/octocat/hello/network/dependents" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := testClient(t, srv)
			got, ok := c.DependentCount(t.Context(), "octocat", "hello")
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("count = %d, want %d", got, tt.want)
			}
		})
	}
}
