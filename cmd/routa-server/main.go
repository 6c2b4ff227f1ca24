package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"routa/internal/a2a"
	"routa/internal/coordination"
	"routa/internal/coordination/events"
	"routa/internal/coordination/tools"
	"routa/internal/llm"
	"routa/internal/shared/logging"
)

var flagListen string

// messageRequest is the inbound A2A envelope: a text payload plus a context
// id the reply is correlated by.
type messageRequest struct {
	ContextID string `json:"context_id"`
	Text      string `json:"text"`
}

type messageResponse struct {
	ContextID string `json:"context_id,omitempty"`
	Text      string `json:"text"`
}

func main() {
	root := &cobra.Command{
		Use:   "routa-server",
		Short: "A2A command endpoint for the coordination runtime",
		RunE:  serve,
	}
	root.Flags().StringVar(&flagListen, "listen", ":8642", "listen address")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, args []string) error {
	logger := logging.NewComponentLogger("server")

	llm.RegisterProvider(llm.ProviderCopilot, llm.NewCopilotProvider())

	store := coordination.NewMemoryStore()
	bus := events.NewBus()
	defer bus.Close()
	agentTools := tools.New(store, bus, logger)
	dispatcher := a2a.New(store, agentTools, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/a2a/message", func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		reply := dispatcher.Handle(req.Text)
		c.JSON(http.StatusOK, messageResponse{ContextID: req.ContextID, Text: reply})
	})

	logger.Info("A2A server listening on %s", flagListen)
	return router.Run(flagListen)
}
