//go:build integration

package llm

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/lecturelens/internal/config"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestOllamaModel runs a tiny model in an Ollama container and checks both
// generation paths end to end. Pulling the model takes a while.
func TestOllamaModel(t *testing.T) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ollama/ollama:latest",
			ExposedPorts: []string{"11434/tcp"},
			WaitingFor:   wait.ForLog("Listening on").WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	const modelName = "qwen2.5:0.5b"
	code, _, err := container.Exec(ctx, []string{"ollama", "pull", modelName})
	require.NoError(t, err)
	require.Equal(t, 0, code, "ollama pull failed")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "11434")
	require.NoError(t, err)

	model, err := NewModel(ctx, Settings{
		Provider:   config.ProviderOllama,
		Model:      modelName,
		OllamaHost: fmt.Sprintf("http://%s:%s", host, port.Port()),
	})
	require.NoError(t, err)

	genCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	text, err := model.Generate(genCtx, "Reply with the single word: hello")
	require.NoError(t, err)
	require.NotEmpty(t, text)

	obj, err := model.GenerateJSON(genCtx, `Return a JSON object of the form {"summary": "<one sentence>"} summarizing: water boils at 100 degrees Celsius.`)
	require.NoError(t, err)
	require.Contains(t, obj, "summary")
}
