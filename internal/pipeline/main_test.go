package pipeline

import (
	"os"
	"testing"

	"memchat-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}
