package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/LdDl/cityflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes engine over HTTP: route queries, congestion telemetry, statistics and queued edits
type Server struct {
	engine *cityflow.Engine
	proj   *cityflow.Projection
	router *gin.Engine
}

// RouteRequest is body of POST /route. Either node identifiers or planar points must be provided.
type RouteRequest struct {
	ID          uint64     `json:"id"`
	Origin      *int64     `json:"origin,omitempty"`
	Destination *int64     `json:"destination,omitempty"`
	OriginPoint *orb.Point `json:"origin_point,omitempty"`
	TargetPoint *orb.Point `json:"destination_point,omitempty"`
	Modes       string     `json:"modes"`
	// Fallback to walking when no route exists under requested modes
	Fallback bool `json:"fallback"`
	// Record assigns route volume to the running epoch
	Record bool `json:"record"`
}

func NewServer(engine *cityflow.Engine, options ...func(*Server)) *Server {
	server := &Server{
		engine: engine,
	}
	for _, option := range options {
		option(server)
	}
	server.router = server.setupRouter()
	return server
}

// WithProjection makes GeoJSON output geographic (lon/lat) instead of planar
func WithProjection(proj cityflow.Projection) func(*Server) {
	return func(server *Server) {
		server.proj = &proj
	}
}

func (server *Server) setupRouter() *gin.Engine {
	r := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"*"}
	r.Use(cors.New(config))

	r.POST("/route", server.handleRoute)
	r.GET("/telemetry", server.handleTelemetry)
	r.GET("/telemetry/geojson", server.handleTelemetryGeoJSON)
	r.GET("/stats", server.handleStats)
	r.POST("/edits", server.handleEdits)
	r.POST("/epoch", server.handleEpoch)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "epoch": server.engine.Epoch()})
	})
	return r
}

// Handler returns http.Handler of the server
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run starts listening on given address
func (server *Server) Run(addr string) error {
	log.Printf("Cityflow API starting on %s", addr)
	return server.router.Run(addr)
}

// statusOf maps engine errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case cityflow.IsValidationError(err), errors.Is(err, cityflow.ErrUnknownNode):
		return http.StatusBadRequest
	case errors.Is(err, cityflow.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, cityflow.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (server *Server) resolveNode(snap *cityflow.Snapshot, id *int64, pt *orb.Point) (cityflow.NodeID, error) {
	if id != nil {
		return cityflow.NodeID(*id), nil
	}
	if pt != nil {
		node, ok := snap.NearestNode(*pt)
		if !ok {
			return 0, cityflow.ErrUnknownNode
		}
		return node.ID, nil
	}
	return 0, &cityflow.ValidationError{Reason: "either node identifier or point must be provided"}
}

func (server *Server) handleRoute(c *gin.Context) {
	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	modes, err := cityflow.ParseModeSet(req.Modes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := server.engine.Snapshot()
	origin, err := server.resolveNode(snap, req.Origin, req.OriginPoint)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	destination, err := server.resolveNode(snap, req.Destination, req.TargetPoint)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	trip := cityflow.TripRequest{
		ID:          req.ID,
		Origin:      origin,
		Destination: destination,
		Modes:       modes,
	}
	var res cityflow.PathResult
	if req.Fallback {
		res, err = server.engine.RouteWithFallback(trip)
	} else {
		res, err = server.engine.RouteOn(snap, trip)
	}
	if err != nil {
		if req.Record {
			server.engine.RecordFailure(err)
		}
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	if req.Record {
		server.engine.RecordResult(&res)
	}
	c.JSON(http.StatusOK, res)
}

func (server *Server) handleTelemetry(c *gin.Context) {
	snap := server.engine.Snapshot()
	if edgeText := c.Query("edge"); edgeText != "" {
		edge, err := strconv.ParseInt(edgeText, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tm, ok := snap.Telemetry(cityflow.EdgeID(edge))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "edge not found"})
			return
		}
		c.JSON(http.StatusOK, tm)
		return
	}
	telemetries, err := filterTelemetry(snap.Telemetries(), c.Query("los"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"epoch":            snap.Epoch(),
		"edges":            telemetries,
		"los_distribution": snap.LOSDistribution(),
		"average_vc":       snap.AverageVC(),
	})
}

func filterTelemetry(telemetries []cityflow.EdgeTelemetry, losText string) ([]cityflow.EdgeTelemetry, error) {
	if losText == "" {
		return telemetries, nil
	}
	var grade cityflow.LOSGrade
	if err := grade.UnmarshalText([]byte(losText)); err != nil {
		return nil, err
	}
	filtered := make([]cityflow.EdgeTelemetry, 0, len(telemetries))
	for _, tm := range telemetries {
		if tm.LOS == grade {
			filtered = append(filtered, tm)
		}
	}
	return filtered, nil
}

func (server *Server) handleTelemetryGeoJSON(c *gin.Context) {
	snap := server.engine.Snapshot()
	telemetries, err := filterTelemetry(snap.Telemetries(), c.Query("los"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	offset := 0.0
	if offsetText := c.Query("offset"); offsetText != "" {
		offset, err = strconv.ParseFloat(offsetText, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	b, err := cityflow.TelemetryGeoJSON(telemetries, server.proj, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", b)
}

func (server *Server) handleStats(c *gin.Context) {
	stats := server.engine.LastStats()
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no epoch has been completed yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (server *Server) handleEdits(c *gin.Context) {
	var edits []cityflow.Edit
	if err := c.ShouldBindJSON(&edits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	server.engine.QueueEdits(edits...)
	c.JSON(http.StatusAccepted, gin.H{"queued": len(edits), "pending": server.engine.PendingEdits()})
}

func (server *Server) handleEpoch(c *gin.Context) {
	stats, err := server.engine.AdvanceEpoch(c.Request.Context())
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	report := server.engine.LastEditReport()
	rejected := []gin.H{}
	if report != nil {
		for _, rejection := range report.Rejected {
			rejected = append(rejected, gin.H{"edit": rejection.Edit.String(), "error": rejection.Err.Error()})
		}
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "rejected": rejected})
}
