package vbuffer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"golang.org/x/exp/slog"
)

// Allocation is the capability contract a Buffer requires from the memory backing its handle:
// host mapping and unmapping, cache maintenance, and destruction of the buffer/memory pair as
// a unit. *vam.Allocation satisfies this interface directly.
type Allocation interface {
	// Map retrieves a host-addressable pointer to the start of the allocation. Every successful
	// Map must be paired with an Unmap.
	Map() (unsafe.Pointer, common.VkResult, error)
	// Unmap releases a mapping previously retrieved with Map
	Unmap() error
	// Flush flushes host writes in the provided range out to the device. On HOST_COHERENT
	// memory types this is expected to be a no-op.
	Flush(offset, size int) (common.VkResult, error)
	// Invalidate invalidates the host cache for the provided range ahead of a host read.
	// On HOST_COHERENT memory types this is expected to be a no-op.
	Invalidate(offset, size int) (common.VkResult, error)
	// Size is the byte size of the allocation, which may be larger than the size requested
	// for the buffer it backs
	Size() int
	// DestroyBuffer destroys the provided buffer handle and frees this allocation. The two are
	// released together, exactly once.
	DestroyBuffer(buffer core1_0.Buffer) error
}

// Allocator is the slice of a vam-style device memory allocator that Buffer consumes:
// creation of a buffer handle together with memory that backs it. Destruction goes through
// the returned Allocation, mirroring how the pair was created.
type Allocator interface {
	// CreateBuffer creates a new core1_0.Buffer described by bufferInfo, allocates memory for
	// it as described by allocInfo, and binds the two together. On failure, no buffer handle
	// or memory outlives the call.
	CreateBuffer(bufferInfo core1_0.BufferCreateInfo, allocInfo vam.AllocationCreateInfo) (core1_0.Buffer, Allocation, common.VkResult, error)
}

// DeviceAllocator is the production Allocator, pairing a core1_0.Device with a vam.Allocator
// that was created for it.
type DeviceAllocator struct {
	logger              *slog.Logger
	device              core1_0.Device
	allocator           *vam.Allocator
	allocationCallbacks *driver.AllocationCallbacks
}

// NewDeviceAllocator creates a DeviceAllocator from a Device and a vam.Allocator created for
// that Device. allocationCallbacks is an optional set of driver callbacks applied to buffer
// handles created through this allocator- it may be nil, and usually is.
func NewDeviceAllocator(
	logger *slog.Logger,
	device core1_0.Device,
	allocator *vam.Allocator,
	allocationCallbacks *driver.AllocationCallbacks,
) *DeviceAllocator {
	if device == nil {
		panic("nil device")
	}
	if allocator == nil {
		panic("nil allocator")
	}

	return &DeviceAllocator{
		logger:              logger,
		device:              device,
		allocator:           allocator,
		allocationCallbacks: allocationCallbacks,
	}
}

func (a *DeviceAllocator) CreateBuffer(
	bufferInfo core1_0.BufferCreateInfo,
	allocInfo vam.AllocationCreateInfo,
) (core1_0.Buffer, Allocation, common.VkResult, error) {
	a.logger.Debug("DeviceAllocator::CreateBuffer")

	buffer, res, err := a.device.CreateBuffer(a.allocationCallbacks, bufferInfo)
	if err != nil {
		return nil, nil, res, errors.Wrap(err, "failed to create buffer handle")
	}

	alloc := &vam.Allocation{}
	res, err = a.allocator.AllocateMemoryForBuffer(buffer, allocInfo, alloc)
	if err != nil {
		buffer.Destroy(a.allocationCallbacks)
		return nil, nil, res, errors.Wrap(err, "failed to allocate memory for buffer")
	}

	res, err = alloc.BindBufferMemory(buffer)
	if err != nil {
		_ = alloc.Free()
		buffer.Destroy(a.allocationCallbacks)
		return nil, nil, res, errors.Wrap(err, "failed to bind memory to buffer")
	}

	return buffer, alloc, res, nil
}
