package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var sharedLogger = sync.OnceValue(func() *log.Logger {
	return log.New(os.Stdout, "", 0)
})

// Logger returns the process-wide JSON-line logger. No prefix, no flags;
// every field including the timestamp lives in the JSON payload, one
// entry per line.
func Logger() *log.Logger { return sharedLogger() }

// LogRequest emits one JSON line for a completed HTTP request.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		// Entries come from our own middleware, so a marshal failure means
		// a non-serializable field snuck into the map.
		Logger().Println(`{"level":"error","msg":"log entry not serializable"}`)
		return
	}
	Logger().Println(string(data))
}
