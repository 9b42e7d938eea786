// Command agentdesk is the command line front end of the agent
// orchestration core. It runs an interactive chat, explains routing
// decisions, executes multi-step goals and reports backend health.
//
// # Configuration
//
// Settings come from an optional YAML file (--config), then environment
// variables, which may be set in a .env file:
//
//	AGENTDESK_BACKEND           - command backend, "memory" or "mongo" (default: "memory")
//	AGENTDESK_MONGO_URI         - MongoDB connection URI
//	AGENTDESK_MONGO_DATABASE    - MongoDB database (default: "agentdesk")
//	AGENTDESK_REDIS_ADDR        - Redis address for execution history
//	AGENTDESK_HISTORY_REDIS_KEY - Redis list receiving execution history
//	AGENTDESK_SESSION_TIMEOUT   - session inactivity timeout (default: "30m")
//	AGENTDESK_BATCH_SIZE        - campaign posts per batch (default: 10)
//	AGENTDESK_BATCH_PACING      - delay between batches (default: "1s")
//	AGENTDESK_METRICS_ADDR      - address serving Prometheus metrics during chat
//	AGENTDESK_LOG_FORMAT        - "terminal" or "json" (default: "terminal")
//	AGENTDESK_DEBUG             - enable debug logs
package main

import (
	"context"

	"goa.design/clue/log"
)

func main() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal(log.Context(ctx), err)
	}
}
