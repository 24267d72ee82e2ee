package vbuffer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Buffer wraps a core1_0.Buffer handle and the Allocation backing it as a single owned unit.
// The device and allocator references it holds are borrowed, not owned- both must outlive
// every Buffer created from them.
//
// Buffer is externally synchronized: no two operations on the same Buffer may run
// concurrently from multiple goroutines.
type Buffer struct {
	logger    *slog.Logger
	device    core1_0.Device
	allocator Allocator

	buffer     core1_0.Buffer
	allocation Allocation
	size       int

	sharingMode        core1_0.SharingMode
	queueFamilyIndices []int
}

// CreateBuffer creates a Buffer of o.Size bytes on the provided device, with memory supplied
// by the provided allocator. The sharing mode is decided from o.QueueFamilyIndices- see
// BufferCreateInfo.
//
// On failure, no buffer handle or allocation outlives the call and the returned VkResult
// carries the underlying cause.
func CreateBuffer(
	logger *slog.Logger,
	device core1_0.Device,
	allocator Allocator,
	o BufferCreateInfo,
) (*Buffer, common.VkResult, error) {
	logger.Debug("vbuffer.CreateBuffer")

	if device == nil {
		panic("nil device")
	}
	if allocator == nil {
		panic("nil allocator")
	}
	if o.Size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("attempted to create a buffer with non-positive size %d", o.Size)
	}

	sharingMode, families := resolveSharingMode(o.QueueFamilyIndices)

	handle, allocation, res, err := allocator.CreateBuffer(
		core1_0.BufferCreateInfo{
			Size:               o.Size,
			Usage:              o.Usage,
			SharingMode:        sharingMode,
			QueueFamilyIndices: families,
		},
		allocationCreateInfo(o),
	)
	if err != nil {
		return nil, res, errors.Wrap(err, "cannot create buffer")
	}

	return &Buffer{
		logger:    logger,
		device:    device,
		allocator: allocator,

		buffer:     handle,
		allocation: allocation,
		size:       o.Size,

		sharingMode:        sharingMode,
		queueFamilyIndices: families,
	}, res, nil
}

// Initialized reports whether this Buffer holds a live buffer/allocation pair. It is false
// for the zero Buffer and for a Buffer that has been destroyed.
func (b *Buffer) Initialized() bool {
	return b != nil && b.device != nil
}

// Size is the byte length the buffer was created with. It never changes.
func (b *Buffer) Size() int {
	return b.size
}

// Handle is the underlying core1_0.Buffer, for handing to pipeline and descriptor code.
// The handle remains owned by this Buffer.
func (b *Buffer) Handle() core1_0.Buffer {
	return b.buffer
}

// SharingMode is the sharing mode decided at creation.
func (b *Buffer) SharingMode() core1_0.SharingMode {
	return b.sharingMode
}

// QueueFamilyIndices is the sorted set of distinct queue family indices the buffer was
// created for. It is nil for exclusive-mode buffers.
func (b *Buffer) QueueFamilyIndices() []int {
	families := make([]int, len(b.queueFamilyIndices))
	copy(families, b.queueFamilyIndices)
	return families
}

// Destroy releases the buffer handle and its backing allocation together. It is idempotent:
// destroying an uninitialized or already-destroyed Buffer does nothing and makes no
// allocator calls.
func (b *Buffer) Destroy() error {
	if !b.Initialized() {
		return nil
	}

	b.logger.Debug("Buffer::Destroy")

	err := b.allocation.DestroyBuffer(b.buffer)
	b.device = nil
	b.allocator = nil
	b.buffer = nil
	b.allocation = nil

	return err
}

// LoadData uploads bytes from data into the buffer through a host mapping. Exactly Size()
// bytes are copied from the front of data, regardless of how much more data carries- it is
// an error to provide fewer. offset is accepted for interface compatibility with typed
// wrappers but the copy is always performed at the start of the allocation.
//
// The backing memory must be host-visible. That is the caller's responsibility to have
// arranged at creation- this method does not check ahead of time, and a violation surfaces
// as the mapping failure it causes. Writes are flushed before the mapping is released,
// which is a no-op on host-coherent memory.
func (b *Buffer) LoadData(data []byte, offset int) (common.VkResult, error) {
	b.logger.Debug("Buffer::LoadData")

	if !b.Initialized() {
		return core1_0.VKErrorUnknown, errors.New("attempted to load data into an uninitialized buffer")
	}
	if len(data) < b.size {
		return core1_0.VKErrorUnknown, errors.Newf("attempted to load %d bytes of data into a buffer of %d bytes", len(data), b.size)
	}

	ptr, res, err := b.allocation.Map()
	if err != nil {
		return res, errors.Wrap(err, "cannot map buffer memory")
	}

	mapped := unsafe.Slice((*byte)(ptr), b.size)
	copy(mapped, data[:b.size])

	res, flushErr := b.allocation.Flush(0, b.size)
	unmapErr := b.allocation.Unmap()
	if flushErr != nil {
		return res, errors.Wrap(flushErr, "cannot flush buffer memory after upload")
	}
	if unmapErr != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(unmapErr, "cannot unmap buffer memory")
	}

	return core1_0.VKSuccess, nil
}

// ReadData reads the buffer's full Size() bytes back through a host mapping into the front
// of out, which must be at least Size() bytes long. The same host-visibility precondition
// as LoadData applies. The host cache is invalidated before the read, which is a no-op on
// host-coherent memory.
func (b *Buffer) ReadData(out []byte) (common.VkResult, error) {
	b.logger.Debug("Buffer::ReadData")

	if !b.Initialized() {
		return core1_0.VKErrorUnknown, errors.New("attempted to read data from an uninitialized buffer")
	}
	if len(out) < b.size {
		return core1_0.VKErrorUnknown, errors.Newf("attempted to read a buffer of %d bytes into %d bytes of space", b.size, len(out))
	}

	ptr, res, err := b.allocation.Map()
	if err != nil {
		return res, errors.Wrap(err, "cannot map buffer memory")
	}

	res, invalidateErr := b.allocation.Invalidate(0, b.size)
	if invalidateErr == nil {
		mapped := unsafe.Slice((*byte)(ptr), b.size)
		copy(out[:b.size], mapped)
	}

	unmapErr := b.allocation.Unmap()
	if invalidateErr != nil {
		return res, errors.Wrap(invalidateErr, "cannot invalidate buffer memory before read")
	}
	if unmapErr != nil {
		return core1_0.VKErrorUnknown, errors.Wrap(unmapErr, "cannot unmap buffer memory")
	}

	return core1_0.VKSuccess, nil
}

// BuildStatsString writes a JSON description of the buffer to the provided writer, for
// inclusion in allocator-level stats dumps.
func (b *Buffer) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	b.printParameters(&obj)
	obj.End()
}

func (b *Buffer) printParameters(json *jwriter.ObjectState) {
	json.Name("Size").Int(b.size)
	json.Name("SharingMode").String(b.sharingMode.String())
	json.Name("Initialized").Bool(b.Initialized())

	if b.sharingMode == core1_0.SharingModeConcurrent {
		familyArray := json.Name("QueueFamilyIndices").Array()
		for _, familyIndex := range b.queueFamilyIndices {
			familyArray.Int(familyIndex)
		}
		familyArray.End()
	}
}
