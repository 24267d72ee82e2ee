package vbuffer

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FindMemoryType locates a memory type index that can back an allocation with the provided
// requirements. typeFilter is a bitmask of acceptable type indices, usually taken from
// core1_0.MemoryRequirements.MemoryTypeBits: bit i set means type i is acceptable to the
// hardware. requiredFlags is the set of property flags the chosen type must carry, such as
// core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent.
//
// Memory types are visited in index order and the first type that both passes the filter and
// carries every required flag is returned. Lower indices are deliberately favored- drivers
// enumerate their preferred types first.
//
// If no type qualifies, this returns core1_0.VKErrorFeatureNotPresent and an error wrapping
// MemoryTypeUnavailableError. That failure indicates a mismatch between the requested flags
// and the hardware and is not retryable.
func FindMemoryType(
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	requiredFlags core1_0.MemoryPropertyFlags,
	typeFilter uint32,
) (int, common.VkResult, error) {
	if memoryProperties == nil {
		panic("nil memoryProperties")
	}

	for typeIndex, memoryType := range memoryProperties.MemoryTypes {
		typeBit := uint32(1 << typeIndex)
		if typeFilter&typeBit == 0 {
			// This memory type is banned by the bitmask
			continue
		}

		if memoryType.PropertyFlags&requiredFlags == requiredFlags {
			return typeIndex, core1_0.VKSuccess, nil
		}
	}

	return -1, core1_0.VKErrorFeatureNotPresent, cerrors.Wrapf(MemoryTypeUnavailableError,
		"required flags %s with type filter %x", requiredFlags.String(), typeFilter)
}

// FindMemoryTypeForPhysicalDevice behaves as FindMemoryType, but enumerates the memory types
// of the provided PhysicalDevice rather than requiring the caller to have done so. Call sites
// going through an Allocator do not need this- the allocator selects memory types itself-
// but it remains available for code driving core1_0.Device.AllocateMemory directly.
func FindMemoryTypeForPhysicalDevice(
	physicalDevice core1_0.PhysicalDevice,
	requiredFlags core1_0.MemoryPropertyFlags,
	typeFilter uint32,
) (int, common.VkResult, error) {
	if physicalDevice == nil {
		panic("nil physicalDevice")
	}

	return FindMemoryType(physicalDevice.MemoryProperties(), requiredFlags, typeFilter)
}
