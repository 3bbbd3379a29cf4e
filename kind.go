package wasmharness

import "fmt"

// Kind is the category of runtime a target executes under.
type Kind int

const (
	KindNodeCJS Kind = iota
	KindNodeESM
	KindDeno
	KindBrowser
	KindDedicatedWorker
	KindSharedWorker
	KindServiceWorker
)

var kindNames = map[Kind]string{
	KindNodeCJS:         "node-cjs",
	KindNodeESM:         "node-esm",
	KindDeno:            "deno",
	KindBrowser:         "browser",
	KindDedicatedWorker: "dedicated-worker",
	KindSharedWorker:    "shared-worker",
	KindServiceWorker:   "service-worker",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses the textual form used on the CLI and in target configs.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown host kind %q", s)
}

// IsWorker reports whether the kind is one of the browser worker contexts.
func (k Kind) IsWorker() bool {
	switch k {
	case KindDedicatedWorker, KindSharedWorker, KindServiceWorker:
		return true
	}
	return false
}

// Reusable reports whether contexts of this kind outlive a single logical
// test run and must be matched to a run by routing key.
func (k Kind) Reusable() bool {
	return k == KindSharedWorker || k == KindServiceWorker
}
