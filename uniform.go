package vbuffer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// UniformBuffer is a Buffer sized for a single value of T and created with
// core1_0.BufferUsageUniformBuffer. T should be a plain struct with explicit std140-friendly
// field layout- this type forwards bytes, it does not repack them.
type UniformBuffer[T any] struct {
	*Buffer
}

// UniformBufferCreateInfo is an options struct that describes a new UniformBuffer. The buffer
// size is derived from T, so no Size field exists. The zero value is a usable default for a
// host-visible uniform buffer accessed from a single queue family.
type UniformBufferCreateInfo struct {
	// AdditionalUsage is or'd into core1_0.BufferUsageUniformBuffer
	AdditionalUsage core1_0.BufferUsageFlags
	// QueueFamilyIndices behaves as BufferCreateInfo.QueueFamilyIndices
	QueueFamilyIndices []int

	// MemoryUsage behaves as BufferCreateInfo.MemoryUsage
	MemoryUsage vam.MemoryUsage
	// RequiredMemoryFlags behaves as BufferCreateInfo.RequiredMemoryFlags
	RequiredMemoryFlags core1_0.MemoryPropertyFlags
	// AllocationFlags behaves as BufferCreateInfo.AllocationFlags
	AllocationFlags vam.AllocationCreateFlags

	// MinOffsetAlignment, when nonzero, pads the buffer size up to a multiple of it. Pass
	// core1_0.PhysicalDeviceLimits.MinUniformBufferOffsetAlignment when the buffer will be
	// bound at a dynamic offset. It must be a power of two.
	MinOffsetAlignment uint
}

// CreateUniformBuffer creates a UniformBuffer for a single value of T.
func CreateUniformBuffer[T any](
	logger *slog.Logger,
	device core1_0.Device,
	allocator Allocator,
	o UniformBufferCreateInfo,
) (*UniformBuffer[T], common.VkResult, error) {
	var payload T
	size := int(unsafe.Sizeof(payload))
	if size == 0 {
		return nil, core1_0.VKErrorUnknown, errors.New("attempted to create a uniform buffer for a zero-sized type")
	}

	if o.MinOffsetAlignment > 1 {
		err := memutils.CheckPow2(o.MinOffsetAlignment, "UniformBufferCreateInfo.MinOffsetAlignment")
		if err != nil {
			return nil, core1_0.VKErrorUnknown, err
		}
		size = memutils.AlignUp(size, o.MinOffsetAlignment)
	}

	buffer, res, err := CreateBuffer(logger, device, allocator, BufferCreateInfo{
		Size:                size,
		Usage:               core1_0.BufferUsageUniformBuffer | o.AdditionalUsage,
		QueueFamilyIndices:  o.QueueFamilyIndices,
		MemoryUsage:         o.MemoryUsage,
		RequiredMemoryFlags: o.RequiredMemoryFlags,
		AllocationFlags:     o.AllocationFlags,
	})
	if err != nil {
		return nil, res, err
	}

	return &UniformBuffer[T]{Buffer: buffer}, res, nil
}

// LoadPayload uploads a single value of T by forwarding its bytes to LoadData. offset is
// forwarded unchanged and carries LoadData's semantics.
func (b *UniformBuffer[T]) LoadPayload(payload *T, offset int) (common.VkResult, error) {
	if payload == nil {
		return core1_0.VKErrorUnknown, errors.New("attempted to load a nil payload")
	}

	// The buffer may be padded past sizeof(T) for dynamic-offset alignment, and LoadData
	// copies the buffer's full size.
	data := make([]byte, b.Size())
	copy(data, unsafe.Slice((*byte)(unsafe.Pointer(payload)), int(unsafe.Sizeof(*payload))))

	return b.LoadData(data, offset)
}

// UniformLayoutBinding returns the descriptor set layout binding for a uniform buffer bound
// at the provided binding index, visible to the vertex and fragment stages. It exists for
// interface completeness alongside UniformBuffer- descriptor set construction is otherwise
// outside this package's remit.
func UniformLayoutBinding(binding int) core1_0.DescriptorSetLayoutBinding {
	return core1_0.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      core1_0.StageVertex | core1_0.StageFragment,
	}
}
