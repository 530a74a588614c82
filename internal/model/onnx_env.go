package model

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// The onnxruntime environment is process-wide. Each ONNX model acquires
// it on construction and releases it on Close; the last release tears
// it down.
var ortEnv struct {
	mu   sync.Mutex
	refs int
}

func acquireORT(libPath string) error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.refs == 0 {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortEnv.refs++
	return nil
}

func releaseORT() error {
	ortEnv.mu.Lock()
	defer ortEnv.mu.Unlock()

	if ortEnv.refs == 0 {
		return nil
	}
	ortEnv.refs--
	if ortEnv.refs == 0 {
		if err := ort.DestroyEnvironment(); err != nil {
			return fmt.Errorf("destroy onnxruntime: %w", err)
		}
	}
	return nil
}
