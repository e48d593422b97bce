package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// ensureTestMode flags the process so app code skips .env loading and
// request logging.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("NUSAPOS_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
