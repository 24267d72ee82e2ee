package vbuffer

import (
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// BufferCreateInfo is an options struct that describes a new Buffer created with CreateBuffer.
type BufferCreateInfo struct {
	// Size is the byte length of the new buffer. It is fixed at creation and must be positive.
	Size int
	// Usage indicates what the buffer will be used for- core1_0.BufferUsageVertexBuffer,
	// core1_0.BufferUsageTransferDst, and so on
	Usage core1_0.BufferUsageFlags

	// QueueFamilyIndices is the set of queue family indices that will access the buffer. It is
	// treated as a set: ordering is irrelevant and duplicates collapse. When more than one
	// distinct family is listed, the buffer is created with core1_0.SharingModeConcurrent and
	// may be accessed from all the listed families without ownership transfers. When the set
	// is empty or names a single family, the buffer is created with
	// core1_0.SharingModeExclusive and ownership transfers between queues are the caller's
	// problem. The choice is made once, here, and is immutable for the life of the buffer.
	QueueFamilyIndices []int

	// MemoryUsage indicates how vam should choose a memory type for the backing allocation
	MemoryUsage vam.MemoryUsage
	// RequiredMemoryFlags is the set of property flags the backing memory type must carry.
	// Buffers that will be populated with LoadData need
	// core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent here (or a
	// HostAccess allocation flag when using the MemoryUsageAuto* usages).
	RequiredMemoryFlags core1_0.MemoryPropertyFlags
	// PreferredMemoryFlags is the set of property flags the backing memory type should,
	// but need not, carry
	PreferredMemoryFlags core1_0.MemoryPropertyFlags
	// AllocationFlags is passed through to the allocation created for the buffer
	AllocationFlags vam.AllocationCreateFlags
	// Priority is the ext_memory_priority priority value applied to the backing memory, when
	// that extension is active
	Priority float32
}

func allocationCreateInfo(o BufferCreateInfo) vam.AllocationCreateInfo {
	return vam.AllocationCreateInfo{
		Flags:          o.AllocationFlags,
		Usage:          o.MemoryUsage,
		RequiredFlags:  o.RequiredMemoryFlags,
		PreferredFlags: o.PreferredMemoryFlags,
		Priority:       o.Priority,
	}
}

// resolveSharingMode collapses a queue family list into the sharing mode decision: more than
// one distinct family means concurrent sharing across exactly the distinct families, anything
// less means exclusive with no family list at all.
func resolveSharingMode(queueFamilyIndices []int) (core1_0.SharingMode, []int) {
	distinct := make(map[int]struct{}, len(queueFamilyIndices))
	for _, familyIndex := range queueFamilyIndices {
		distinct[familyIndex] = struct{}{}
	}

	if len(distinct) <= 1 {
		return core1_0.SharingModeExclusive, nil
	}

	families := maps.Keys(distinct)
	slices.Sort(families)
	return core1_0.SharingModeConcurrent, families
}
