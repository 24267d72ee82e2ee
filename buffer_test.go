package vbuffer

import (
	"bytes"
	"io"
	"testing"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/golang/mock/gomock"
	"golang.org/x/exp/slog"
)

// fakeAllocation backs an Allocation with plain host memory so upload round-trips are
// observable without a device.
type fakeAllocation struct {
	backing []byte

	mapFails     bool
	mapCount     int
	unmapCount   int
	flushCount   int
	destroyCount int

	destroyedBuffer core1_0.Buffer
}

func (a *fakeAllocation) Map() (unsafe.Pointer, common.VkResult, error) {
	if a.mapFails {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("memory is not host-visible")
	}

	a.mapCount++
	return unsafe.Pointer(&a.backing[0]), core1_0.VKSuccess, nil
}

func (a *fakeAllocation) Unmap() error {
	a.unmapCount++
	return nil
}

func (a *fakeAllocation) Flush(offset, size int) (common.VkResult, error) {
	a.flushCount++
	return core1_0.VKSuccess, nil
}

func (a *fakeAllocation) Invalidate(offset, size int) (common.VkResult, error) {
	return core1_0.VKSuccess, nil
}

func (a *fakeAllocation) Size() int { return len(a.backing) }

func (a *fakeAllocation) DestroyBuffer(buffer core1_0.Buffer) error {
	a.destroyCount++
	a.destroyedBuffer = buffer
	return nil
}

type fakeAllocator struct {
	handle core1_0.Buffer

	failWith   error
	mapFails   bool
	allocation *fakeAllocation

	createCount    int
	lastBufferInfo core1_0.BufferCreateInfo
	lastAllocInfo  vam.AllocationCreateInfo
}

func (f *fakeAllocator) CreateBuffer(
	bufferInfo core1_0.BufferCreateInfo,
	allocInfo vam.AllocationCreateInfo,
) (core1_0.Buffer, Allocation, common.VkResult, error) {
	f.createCount++
	f.lastBufferInfo = bufferInfo
	f.lastAllocInfo = allocInfo

	if f.failWith != nil {
		return nil, nil, core1_0.VKErrorOutOfDeviceMemory, f.failWith
	}

	f.allocation = &fakeAllocation{
		backing:  make([]byte, bufferInfo.Size),
		mapFails: f.mapFails,
	}
	return f.handle, f.allocation, core1_0.VKSuccess, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateBufferExclusive(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	handle := mocks.NewMockBuffer(ctrl)
	allocator := &fakeAllocator{handle: handle}

	buffer, res, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:        256,
		Usage:       core1_0.BufferUsageUniformBuffer,
		MemoryUsage: vam.MemoryUsageAuto,
		RequiredMemoryFlags: core1_0.MemoryPropertyHostVisible |
			core1_0.MemoryPropertyHostCoherent,
		AllocationFlags: vam.AllocationCreateHostAccessSequentialWrite,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	require.True(t, buffer.Initialized())
	require.Equal(t, 256, buffer.Size())
	require.Equal(t, handle, buffer.Handle())
	require.Equal(t, core1_0.SharingModeExclusive, buffer.SharingMode())
	require.Empty(t, buffer.QueueFamilyIndices())

	require.Equal(t, 1, allocator.createCount)
	require.Equal(t, core1_0.SharingModeExclusive, allocator.lastBufferInfo.SharingMode)
	require.Empty(t, allocator.lastBufferInfo.QueueFamilyIndices)
	require.Equal(t, 256, allocator.lastBufferInfo.Size)
	require.Equal(t, core1_0.BufferUsageUniformBuffer, allocator.lastBufferInfo.Usage)
	require.Equal(t,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent,
		allocator.lastAllocInfo.RequiredFlags)
	require.Equal(t, vam.MemoryUsageAuto, allocator.lastAllocInfo.Usage)
}

func TestCreateBufferSingleQueueFamilyIsExclusive(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:               64,
		Usage:              core1_0.BufferUsageVertexBuffer,
		QueueFamilyIndices: []int{3},
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.SharingModeExclusive, buffer.SharingMode())
	require.Empty(t, allocator.lastBufferInfo.QueueFamilyIndices)
}

func TestCreateBufferConcurrent(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:               64,
		Usage:              core1_0.BufferUsageVertexBuffer,
		QueueFamilyIndices: []int{2, 0},
	})
	require.NoError(t, err)

	require.Equal(t, core1_0.SharingModeConcurrent, buffer.SharingMode())
	require.Equal(t, []int{0, 2}, buffer.QueueFamilyIndices())
	require.Equal(t, core1_0.SharingModeConcurrent, allocator.lastBufferInfo.SharingMode)
	require.Equal(t, []int{0, 2}, allocator.lastBufferInfo.QueueFamilyIndices)
}

func TestCreateBufferDuplicateQueueFamiliesCollapse(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	// {1, 1, 1} is a single distinct family- still exclusive
	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:               64,
		QueueFamilyIndices: []int{1, 1, 1},
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.SharingModeExclusive, buffer.SharingMode())

	buffer, _, err = CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:               64,
		QueueFamilyIndices: []int{2, 0, 2, 0},
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.SharingModeConcurrent, buffer.SharingMode())
	require.Equal(t, []int{0, 2}, allocator.lastBufferInfo.QueueFamilyIndices)
}

func TestCreateBufferFailureLeavesNothingBehind(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{failWith: errors.New("out of device memory")}

	buffer, res, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size: 1024,
	})
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
	require.Nil(t, buffer)
	require.Nil(t, allocator.allocation)
}

func TestCreateBufferRejectsNonPositiveSize(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	_, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{Size: 0})
	require.Error(t, err)
	require.Zero(t, allocator.createCount)
}

func TestLoadDataRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size: 16,
		RequiredMemoryFlags: core1_0.MemoryPropertyHostVisible |
			core1_0.MemoryPropertyHostCoherent,
	})
	require.NoError(t, err)

	data := []byte("0123456789abcdef")
	res, err := buffer.LoadData(data, 0)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.True(t, bytes.Equal(data, allocator.allocation.backing))

	// A repeated identical load is a no-op on content
	res, err = buffer.LoadData(data, 0)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.True(t, bytes.Equal(data, allocator.allocation.backing))

	// And the content reads back unchanged
	out := make([]byte, 16)
	res, err = buffer.ReadData(out)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, data, out)

	// Map and unmap always pair, and writes were flushed before unmapping
	require.Equal(t, allocator.allocation.mapCount, allocator.allocation.unmapCount)
	require.Equal(t, 2, allocator.allocation.flushCount)
}

func TestLoadDataCopiesExactlyBufferSize(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{Size: 4})
	require.NoError(t, err)

	_, err = buffer.LoadData([]byte("abcdefgh"), 0)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), allocator.allocation.backing)
}

func TestLoadDataShortSource(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{Size: 16})
	require.NoError(t, err)

	_, err = buffer.LoadData([]byte("too short"), 0)
	require.Error(t, err)
	require.Zero(t, allocator.allocation.mapCount)
}

func TestLoadDataMapFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl), mapFails: true}

	// Created without host-visible flags- the mapping failure surfaces from the allocator
	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:        16,
		MemoryUsage: vam.MemoryUsageAutoPreferDevice,
	})
	require.NoError(t, err)

	res, err := buffer.LoadData(make([]byte, 16), 0)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorMemoryMapFailed, res)
	require.Zero(t, allocator.allocation.unmapCount)
}

func TestDestroyReleasesPairExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	handle := mocks.NewMockBuffer(ctrl)
	allocator := &fakeAllocator{handle: handle}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{Size: 16})
	require.NoError(t, err)
	allocation := allocator.allocation

	require.NoError(t, buffer.Destroy())
	require.False(t, buffer.Initialized())
	require.Equal(t, 1, allocation.destroyCount)
	require.Equal(t, handle, allocation.destroyedBuffer)

	// Destroying again is a no-op, not a double free
	require.NoError(t, buffer.Destroy())
	require.Equal(t, 1, allocation.destroyCount)
}

func TestZeroBufferIsUninitialized(t *testing.T) {
	var buffer Buffer
	require.False(t, buffer.Initialized())
	require.NoError(t, buffer.Destroy())

	var nilBuffer *Buffer
	require.False(t, nilBuffer.Initialized())
}

func TestBuildStatsString(t *testing.T) {
	ctrl := gomock.NewController(t)

	device := mocks.NewMockDevice(ctrl)
	allocator := &fakeAllocator{handle: mocks.NewMockBuffer(ctrl)}

	buffer, _, err := CreateBuffer(testLogger(), device, allocator, BufferCreateInfo{
		Size:               128,
		QueueFamilyIndices: []int{0, 2},
	})
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	buffer.BuildStatsString(&writer)
	require.NoError(t, writer.Error())

	statsJson := string(writer.Bytes())
	require.Contains(t, statsJson, `"Size":128`)
	require.Contains(t, statsJson, `"QueueFamilyIndices":[0,2]`)
}
