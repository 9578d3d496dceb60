package recommender

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/monitoring"
	"github.com/kbcanvas/kbcanvas/internal/ports/outbound"
	apperrors "github.com/kbcanvas/kbcanvas/pkg/errors"
)

type ClientTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *ClientTestSuite) serve(status int, body string) (*Client, func()) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	return s.newClient(server.URL), server.Close
}

func (s *ClientTestSuite) newClient(url string) *Client {
	return NewClient(
		config.RecommenderConfig{URL: url, Timeout: 5 * time.Second},
		config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 100},
		monitoring.NewMetricsCollector(zap.NewNop()),
		zap.NewNop(),
	)
}

func (s *ClientTestSuite) TestRecommend() {
	s.Run("Success_ShouldSendOrderedPreferences", func() {
		// Arrange
		var got outbound.RecommendationRequest
		var method, contentType string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			contentType = r.Header.Get("Content-Type")
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			_, _ = io.WriteString(w, `{"recommendations":[{"id":1,"name":"Item A","similarity":0.93},{"id":"b2","name":"Item B"}]}`)
		}))
		defer server.Close()

		// Act
		items, err := s.newClient(server.URL).Recommend(s.ctx, []string{"tech", "books"})

		// Assert
		s.Require().NoError(err)
		s.Equal(http.MethodPost, method)
		s.Equal("application/json", contentType)
		s.Equal([]string{"tech", "books"}, got.Preferences)
		s.Require().Len(items, 2)
		s.Equal(outbound.ItemID("1"), items[0].ID)
		s.Equal("Item A", items[0].Name)
		s.Require().NotNil(items[0].Similarity)
		s.InDelta(0.93, *items[0].Similarity, 1e-9)
		s.Equal(outbound.ItemID("b2"), items[1].ID)
		s.Nil(items[1].Similarity)
	})

	s.Run("EmptyList_ShouldBeValid", func() {
		client, done := s.serve(http.StatusOK, `{"recommendations":[]}`)
		defer done()

		items, err := client.Recommend(s.ctx, []string{"x"})

		s.NoError(err)
		s.NotNil(items)
		s.Empty(items)
	})

	s.Run("ErrorStatus_ShouldReturnUpstreamStatus", func() {
		client, done := s.serve(http.StatusInternalServerError, `{"error":"boom"}`)
		defer done()

		items, err := client.Recommend(s.ctx, []string{"x"})

		s.Nil(items)
		s.True(apperrors.Is(err, apperrors.CodeUpstreamStatus))
	})
}

func (s *ClientTestSuite) TestRecommend_SchemaViolations() {
	cases := map[string]string{
		"MissingField": `{"items":[]}`,
		"NullField":    `{"recommendations":null}`,
		"WrongType":    `{"recommendations":"nope"}`,
		"MissingName":  `{"recommendations":[{"id":1}]}`,
		"EmptyName":    `{"recommendations":[{"id":1,"name":""}]}`,
		"MissingID":    `{"recommendations":[{"name":"A"}]}`,
		"NotJSON":      `<html>oops</html>`,
		"BooleanID":    `{"recommendations":[{"id":true,"name":"A"}]}`,
	}

	for name, body := range cases {
		s.Run(name+"_ShouldReturnSchemaMismatch", func() {
			client, done := s.serve(http.StatusOK, body)
			defer done()

			items, err := client.Recommend(s.ctx, []string{"x"})

			s.Nil(items)
			s.True(apperrors.Is(err, apperrors.CodeSchemaMismatch), "got %v", err)
		})
	}
}

func (s *ClientTestSuite) TestRecommend_Unreachable() {
	client := s.newClient("http://127.0.0.1:1/recommend")

	_, err := client.Recommend(s.ctx, []string{"x"})

	s.True(apperrors.Is(err, apperrors.CodeExternalServiceError))
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}
