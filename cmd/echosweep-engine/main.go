// Command echosweep-engine serves the reference opinion-dynamics model over
// the engine protocol. Point engine.path at this binary to sweep it out of
// process.
package main

import (
	"time"

	"github.com/harun/echosweep/pkg/engine"
	"github.com/harun/echosweep/pkg/engine/reference"
)

func main() {
	engine.Serve(reference.New(uint64(time.Now().UnixNano())))
}
