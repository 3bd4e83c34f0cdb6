package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcenter/core"
)

func TestFunctionTool(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sum := NewFunctionTool("calculate_sum", "Calculate the sum of two numbers", schema, func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("%v", args["a"].(float64)+args["b"].(float64)), nil
	})

	t.Run("Metadata", func(t *testing.T) {
		assert.Equal(t, "calculate_sum", sum.Name())
		assert.Equal(t, "Calculate the sum of two numbers", sum.Description())
		assert.Equal(t, schema, sum.Parameters())
	})

	t.Run("Call", func(t *testing.T) {
		result, err := sum.Call(context.Background(), map[string]any{"a": float64(2), "b": float64(3)})
		require.NoError(t, err)
		assert.Equal(t, "5", result)
	})

	t.Run("MissingRequiredArgument", func(t *testing.T) {
		_, err := sum.Call(context.Background(), map[string]any{"a": float64(2)})
		require.Error(t, err)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
		assert.Equal(t, "calculate_sum", toolErr.Tool)
	})

	t.Run("WrongArgumentType", func(t *testing.T) {
		_, err := sum.Call(context.Background(), map[string]any{"a": "two", "b": float64(3)})
		require.Error(t, err)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	})

	t.Run("ExecutionError", func(t *testing.T) {
		failing := NewFunctionTool("always_fails", "Always fails", schema, func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("boom")
		})

		_, err := failing.Call(context.Background(), map[string]any{"a": float64(1), "b": float64(2)})
		require.Error(t, err)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
		assert.Equal(t, "boom", toolErr.Message)
	})

	t.Run("ToolErrorPassthrough", func(t *testing.T) {
		custom := NewFunctionTool("custom_error", "Returns a custom tool error", schema, func(ctx context.Context, args map[string]any) (string, error) {
			return "", NewToolError("custom_error", "rate limited", "RATE_LIMITED")
		})

		_, err := custom.Call(context.Background(), map[string]any{"a": float64(1), "b": float64(2)})
		require.Error(t, err)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "RATE_LIMITED", toolErr.Code)
	})

	t.Run("ContextPropagation", func(t *testing.T) {
		type key string

		probe := NewFunctionTool("probe", "Reads a context value", map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}, func(ctx context.Context, args map[string]any) (string, error) {
			v, _ := ctx.Value(key("marker")).(string)
			return v, nil
		})

		ctx := context.WithValue(context.Background(), key("marker"), "present")

		result, err := probe.Call(ctx, map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "present", result)
	})
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type WeatherArgs struct {
		City  string `json:"city" description:"City to look up"`
		Units string `json:"units,omitempty" description:"Temperature units"`
	}

	weather := NewFunctionToolFromStruct("get_weather", "Get the weather for a city", WeatherArgs{}, func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("sunny in %s", args["city"]), nil
	})

	params := weather.Parameters()
	assert.Equal(t, "object", params["type"])

	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")

	required, ok := params["required"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"city"}, required)

	t.Run("ValidCall", func(t *testing.T) {
		result, err := weather.Call(context.Background(), map[string]any{"city": "Berlin"})
		require.NoError(t, err)
		assert.Equal(t, "sunny in Berlin", result)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		_, err := weather.Call(context.Background(), map[string]any{"units": "celsius"})
		require.Error(t, err)

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	})
}

func TestRegistry(t *testing.T) {
	echo := NewFunctionTool("echo", "Echoes input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		text, _ := args["text"].(string)
		return text, nil
	})

	t.Run("RegisterAndGet", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(echo))

		got, ok := registry.Get("echo")
		require.True(t, ok)
		assert.Equal(t, "echo", got.Name())
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("DuplicateName", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(echo))

		err := registry.Register(echo)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrInvalidConfig)
	})

	t.Run("NilTool", func(t *testing.T) {
		registry := NewRegistry()
		assert.ErrorIs(t, registry.Register(nil), core.ErrInvalidConfig)
	})

	t.Run("UnknownName", func(t *testing.T) {
		registry := NewRegistry()
		_, ok := registry.Get("missing")
		assert.False(t, ok)
	})

	t.Run("Names", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(echo))

		other := NewFunctionTool("other", "Another tool", map[string]any{"type": "object", "properties": map[string]any{}}, func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		})
		require.NoError(t, registry.Register(other))

		assert.ElementsMatch(t, []string{"echo", "other"}, registry.Names())
	})
}
