// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/recsys/base/log"
	"github.com/gorse-io/recsys/common/parallel"
	"github.com/gorse-io/recsys/config"
	"github.com/gorse-io/recsys/logics"
	"github.com/gorse-io/recsys/model/knn"
	"github.com/gorse-io/recsys/storage/data"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const HeaderRequestId = "X-Request-ID"

// ModelBuilder rebuilds the cached model from the data store.
type ModelBuilder interface {
	// Rebuild builds a snapshot and waits until it is swapped in or discarded.
	Rebuild(ctx context.Context) (*logics.Snapshot, bool, error)
	// RequestRebuild schedules a rebuild and returns immediately.
	RequestRebuild()
}

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config     *config.Config
	DataClient data.Database
	Cache      *logics.ModelCache
	Builder    ModelBuilder
	HttpHost   string
	HttpPort   int
	WebService *restful.WebService

	limiter parallel.RateLimiter
}

// StartHttpServer starts the REST-ful API server.
func (s *RestServer) StartHttpServer(container *restful.Container) {
	log.Logger().Info("start http server",
		zap.String("url", fmt.Sprintf("http://%s:%d", s.HttpHost, s.HttpPort)))
	log.Logger().Fatal("failed to start http server",
		zap.Error(http.ListenAndServe(fmt.Sprintf("%s:%d", s.HttpHost, s.HttpPort), container)))
}

// NewContainer registers the web service, API docs and metrics.
func (s *RestServer) NewContainer() *restful.Container {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	// register swagger docs
	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}))
	// register prometheus
	container.Handle("/metrics", promhttp.Handler())
	// cross-origin requests from the allowed origins
	cors := restful.CrossOriginResourceSharing{
		AllowedDomains: s.Config.Server.AllowedOrigins,
		AllowedHeaders: []string{"Content-Type", "Accept", HeaderRequestId},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		ExposeHeaders:  []string{HeaderRequestId},
		CookiesAllowed: true,
		Container:      container,
	}
	container.Filter(cors.Filter)
	container.Filter(container.OPTIONSFilter)
	container.Filter(otelrestful.OTelFilter("recsys"))
	return container
}

// RequestIdFilter tags each request with an id, reusing the one sent by the client.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.Request.Header.Get(HeaderRequestId)
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set(HeaderRequestId, requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	if req.Request.URL.Path != "/api/health" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *RestServer) rateLimitFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.limiter.TakeAvailable(1) == 0 {
		RateLimitedTotal.Inc()
		TooManyRequests(resp, errors.New("rate limit exceeded"))
		return
	}
	chain.ProcessFilter(req, resp)
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	if s.WebService == nil {
		s.WebService = new(restful.WebService)
	}
	s.limiter = parallel.NewRateLimiter(s.Config.Server.RateLimit)
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)
	ws.Filter(s.rateLimitFilter)

	// Get users
	ws.Route(ws.GET("/users").To(s.getUsers).
		Doc("Get all users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Writes([]data.User{}))
	// Get items
	ws.Route(ws.GET("/items").To(s.getItems).
		Doc("Get all items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"item"}).
		Writes([]data.Item{}))
	// Insert or update a rating
	ws.Route(ws.POST("/rating").To(s.upsertRating).
		Doc("Insert a rating or update the score of an existing one.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Reads(data.Rating{}).
		Writes(Success{}))

	// Get recommendation
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendation for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Param(ws.QueryParameter("model", "model used for recommendation").DataType("string").
			AllowableValues(map[string]string{
				config.ModelNeighbors: "similar users",
				config.ModelLatent:    "latent factors",
			})).
		Writes(RecommendResponse{}))
	// Explain a prediction
	ws.Route(ws.GET("/recommend/{user-id}/explain/{item-id}").To(s.getExplanation).
		Doc("Get contributions of similar users to the predicted score of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Writes(ExplainResponse{}))

	// Rebuild the model
	ws.Route(ws.POST("/model").To(s.rebuildModel).
		Doc("Rebuild the model from the data store.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.QueryParameter("wait", "wait until the model is built").DataType("boolean").DefaultValue("true")).
		Writes(ModelResponse{}))
	// Health check
	ws.Route(ws.GET("/health").To(s.checkHealth).
		Doc("Check the health of the server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))
}

// Success is the response of a write request.
type Success struct {
	RowAffected int
}

type RecommendResponse struct {
	Items    []data.Item
	Model    string
	Version  int64
	Fallback bool
}

type ExplainResponse struct {
	UserId        string
	ItemId        string
	Score         float64
	Contributions []knn.Contribution
}

type ModelResponse struct {
	Version int64
	Swapped bool
	Skipped int
	Users   int
	Items   int
}

type HealthStatus struct {
	Ready        bool
	DataStoreErr string `json:",omitempty"`
	Version      int64
}

func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func ParseBool(request *restful.Request, name string, fallback bool) (value bool, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.ParseBool(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func (s *RestServer) getUsers(request *restful.Request, response *restful.Response) {
	users, err := s.DataClient.GetUsers(request.Request.Context())
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, users)
}

func (s *RestServer) getItems(request *restful.Request, response *restful.Response) {
	items, err := s.DataClient.GetItems(request.Request.Context())
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, items)
}

func (s *RestServer) upsertRating(request *restful.Request, response *restful.Response) {
	var rating data.Rating
	if err := request.ReadEntity(&rating); err != nil {
		BadRequest(response, err)
		return
	}
	if err := data.ValidateRating(rating); err != nil {
		BadRequest(response, err)
		return
	}
	// the model is rebuilt on request only
	if err := s.DataClient.UpsertRating(request.Request.Context(), rating); err != nil {
		InternalServerError(response, err)
		return
	}
	UpsertRatingTotal.Inc()
	Ok(response, Success{RowAffected: 1})
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	start := time.Now()
	userId := request.PathParameter("user-id")
	n, err := ParseInt(request, "n", 0)
	if err != nil {
		BadRequest(response, err)
		return
	}
	recommender := logics.NewRecommender(*s.Config, s.Cache, s.DataClient)
	result, err := recommender.Recommend(request.Request.Context(), userId, n, request.QueryParameter("model"))
	if errors.Is(err, errors.NotValid) {
		BadRequest(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	GetRecommendSeconds.WithLabelValues(result.Model).Observe(time.Since(start).Seconds())
	if result.Fallback {
		FallbackRecommendTotal.WithLabelValues(result.Model).Inc()
	}
	Ok(response, RecommendResponse{
		Items:    result.Items,
		Model:    result.Model,
		Version:  result.Version,
		Fallback: result.Fallback,
	})
}

func (s *RestServer) getExplanation(request *restful.Request, response *restful.Response) {
	userId := request.PathParameter("user-id")
	itemId := request.PathParameter("item-id")
	recommender := logics.NewRecommender(*s.Config, s.Cache, s.DataClient)
	explanation, err := recommender.Explain(userId, itemId)
	if errors.Is(err, errors.NotFound) {
		PageNotFound(response, err)
		return
	} else if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, ExplainResponse{
		UserId:        userId,
		ItemId:        itemId,
		Score:         explanation.Score,
		Contributions: explanation.Contributions,
	})
}

func (s *RestServer) rebuildModel(request *restful.Request, response *restful.Response) {
	if s.Builder == nil {
		ServiceUnavailable(response, errors.NotAssignedf("model builder"))
		return
	}
	wait, err := ParseBool(request, "wait", true)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if !wait {
		s.Builder.RequestRebuild()
		Accepted(response, Success{})
		return
	}
	snapshot, swapped, err := s.Builder.Rebuild(request.Request.Context())
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, ModelResponse{
		Version: snapshot.Version,
		Swapped: swapped,
		Skipped: snapshot.Skipped,
		Users:   int(snapshot.Neighbors.UserIndex.Len()),
		Items:   int(snapshot.Neighbors.ItemIndex.Len()),
	})
}

func (s *RestServer) checkHealth(request *restful.Request, response *restful.Response) {
	status := HealthStatus{Ready: true}
	if snapshot := s.Cache.Load(); snapshot != nil {
		status.Version = snapshot.Version
	}
	if err := s.DataClient.Ping(); err != nil {
		status.Ready = false
		status.DataStoreErr = err.Error()
		if err = response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, status)
}

func BadRequest(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func InternalServerError(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func ServiceUnavailable(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("service unavailable", zap.Error(err))
	if err = response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func TooManyRequests(response *restful.Response, err error) {
	if err = response.WriteError(http.StatusTooManyRequests, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func PageNotFound(response *restful.Response, err error) {
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func Accepted(response *restful.Response, content any) {
	if err := response.WriteHeaderAndJson(http.StatusAccepted, content, restful.MIME_JSON); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func Ok(response *restful.Response, content any) {
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
