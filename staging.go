package vbuffer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// UploadViaStaging populates this buffer from data without requiring its memory to be
// host-visible: a transient host-visible staging buffer of the same size is created from
// the same allocator, filled with LoadData, and copied in with a one-shot transfer on
// transferQueue. The receiver must have been created with core1_0.BufferUsageTransferDst
// in its usage flags.
//
// The staging buffer is destroyed before the call returns, on success and failure alike.
// This is a setup-time convenience- it inherits CopyFrom's blocking, serialized transfer
// behavior.
func (b *Buffer) UploadViaStaging(data []byte, transferQueue core1_0.Queue, transferPool core1_0.CommandPool) (common.VkResult, error) {
	b.logger.Debug("Buffer::UploadViaStaging")

	if !b.Initialized() {
		return core1_0.VKErrorUnknown, errors.New("attempted a staged upload into an uninitialized buffer")
	}

	staging, res, err := CreateBuffer(b.logger, b.device, b.allocator, BufferCreateInfo{
		Size:        b.size,
		Usage:       core1_0.BufferUsageTransferSrc,
		MemoryUsage: vam.MemoryUsageAuto,
		RequiredMemoryFlags: core1_0.MemoryPropertyHostVisible |
			core1_0.MemoryPropertyHostCoherent,
		AllocationFlags: vam.AllocationCreateHostAccessSequentialWrite,
	})
	if err != nil {
		return res, errors.Wrap(err, "cannot create staging buffer")
	}
	defer func() {
		_ = staging.Destroy()
	}()

	res, err = staging.LoadData(data, 0)
	if err != nil {
		return res, err
	}

	return b.CopyFromBuffer(staging, transferQueue, transferPool)
}
