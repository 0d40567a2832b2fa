//go:build !nogpu

package gpu

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/centerline"
)

type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

type mockQueue struct{}

type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL access.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

func TestRegistered(t *testing.T) {
	a := centerline.CurrentAccelerator()
	if a == nil {
		t.Fatal("no accelerator registered by init")
	}
	if a.Name() != "wgpu" {
		t.Errorf("registered accelerator = %q, want wgpu", a.Name())
	}
}

func TestSetDeviceProviderWithoutHAL(t *testing.T) {
	if err := SetDeviceProvider(&mockProvider{}); err == nil {
		t.Error("SetDeviceProvider() accepted a provider without HAL access")
	}
}

func TestProcessFallsBackWithoutDevice(t *testing.T) {
	a := New()
	defer a.Close()

	ex := centerline.NewExtractor(centerline.WithAccelerator(a))
	defer ex.Close()

	g, _ := centerline.NewClassGrid(7, 7)
	mask, stats, err := ex.ProcessWithStats(g)
	if err != nil {
		t.Fatalf("ProcessWithStats() = %v", err)
	}
	if stats.Backend != "cpu" {
		t.Errorf("Backend = %q, want cpu", stats.Backend)
	}
	if mask.Count() != 1 || !mask.At(3, 3) {
		t.Errorf("mask =\n%s", mask)
	}
}
