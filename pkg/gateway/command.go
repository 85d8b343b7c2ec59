package gateway

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// HandleCommand is the subscriber callback for the command topic. It runs
// on the broker library's dispatch goroutine. The payload is a JSON object;
// only the configured key is read, other fields are ignored. Malformed or
// unknown commands are dropped without touching the serial link.
func (g *Gateway) HandleCommand(payload []byte) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		log.Errorf("[GATEWAY] failed to parse command payload: %v", err)
		return
	}

	command, _ := body[g.payloadKey].(string)
	if _, ok := g.validCommands[command]; !ok {
		log.Errorf("[GATEWAY] invalid command received: %q", command)
		return
	}

	log.Infof("[GATEWAY] command received: %s", command)
	if err := g.link.Send(command); err != nil {
		log.Errorf("[GATEWAY] failed to send %s: %v", command, err)
	}
}
