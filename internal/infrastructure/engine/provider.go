package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileConfigProvider serves engine payloads from JSON files in a directory:
// node_<id>.json per node, master.json for the local engine and
// user_<name>.json per user, with default.json and user_default.json as
// the shared fallbacks. A target with no file at all gets an empty object,
// which tells the engine to use its built-in settings.
type FileConfigProvider struct {
	dir string
}

// NewFileConfigProvider creates a provider rooted at dir
func NewFileConfigProvider(dir string) *FileConfigProvider {
	return &FileConfigProvider{dir: dir}
}

// NodeConfig returns the payload for starting a remote node's engine
func (p *FileConfigProvider) NodeConfig(_ context.Context, nodeID uint) (Config, error) {
	return p.read(fmt.Sprintf("node_%d.json", nodeID), "default.json")
}

// MasterConfig returns the payload for the locally run engine
func (p *FileConfigProvider) MasterConfig(_ context.Context) (Config, error) {
	return p.read("master.json", "default.json")
}

// UserPayload returns the per-user settings sent along with AddUser
func (p *FileConfigProvider) UserPayload(_ context.Context, username string) (Config, error) {
	return p.read(fmt.Sprintf("user_%s.json", username), "user_default.json")
}

func (p *FileConfigProvider) read(name, fallback string) (Config, error) {
	for _, candidate := range []string{name, fallback} {
		content, err := os.ReadFile(filepath.Join(p.dir, candidate))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read engine config %s: %w", candidate, err)
		}
		if !json.Valid(content) {
			return nil, fmt.Errorf("engine config %s is not valid JSON", candidate)
		}
		return Config(content), nil
	}

	return Config(`{}`), nil
}
