package vbuffer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CmdCopyFrom records a copy of this buffer's full Size() bytes from src into an
// already-recording command buffer. Nothing is submitted- the caller owns the command
// buffer's lifecycle and synchronization. A single region is recorded, from offset 0 of
// src to offset 0 of this buffer.
func (b *Buffer) CmdCopyFrom(src core1_0.Buffer, commandBuffer core1_0.CommandBuffer) error {
	b.logger.Debug("Buffer::CmdCopyFrom")

	if !b.Initialized() {
		return errors.New("attempted to record a copy into an uninitialized buffer")
	}
	if src == nil {
		return errors.New("attempted to record a copy from a nil buffer")
	}

	return commandBuffer.CmdCopyBuffer(src, b.buffer, []core1_0.BufferCopy{
		{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      b.size,
		},
	})
}

// CmdCopyFromBuffer behaves as CmdCopyFrom with another Buffer as the source. The source
// must be at least Size() bytes long.
func (b *Buffer) CmdCopyFromBuffer(src *Buffer, commandBuffer core1_0.CommandBuffer) error {
	if !src.Initialized() {
		return errors.New("attempted to record a copy from an uninitialized buffer")
	}

	return b.CmdCopyFrom(src.buffer, commandBuffer)
}

// CopyFrom copies this buffer's full Size() bytes from src as a one-shot transfer: a single
// primary command buffer is allocated from transferPool, recorded with the copy, submitted
// to transferQueue with no synchronization primitives, and freed once the queue has gone
// idle. The call blocks until the transfer completes. One command buffer and one blocking
// submit per copy keeps this simple but serializes every transfer- fine for setup-time
// uploads, not for per-frame streaming.
//
// The command buffer is freed back to the pool on every exit path, including failures
// partway through recording or submission. transferQueue and transferPool are borrowed for
// the duration of the call and must not be used from another goroutine while it runs.
func (b *Buffer) CopyFrom(src core1_0.Buffer, transferQueue core1_0.Queue, transferPool core1_0.CommandPool) (common.VkResult, error) {
	b.logger.Debug("Buffer::CopyFrom")

	if !b.Initialized() {
		return core1_0.VKErrorUnknown, errors.New("attempted to copy into an uninitialized buffer")
	}

	commandBuffers, res, err := b.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        transferPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return res, errors.Wrap(err, "cannot allocate transfer command buffer")
	}
	defer b.device.FreeCommandBuffers(commandBuffers)

	commandBuffer := commandBuffers[0]

	res, err = commandBuffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return res, errors.Wrap(err, "cannot begin transfer command buffer")
	}

	err = b.CmdCopyFrom(src, commandBuffer)
	if err != nil {
		return core1_0.VKErrorUnknown, err
	}

	res, err = commandBuffer.End()
	if err != nil {
		return res, errors.Wrap(err, "cannot end transfer command buffer")
	}

	res, err = transferQueue.Submit(nil, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
		},
	})
	if err != nil {
		return res, errors.Wrap(err, "cannot submit transfer command buffer")
	}

	res, err = transferQueue.WaitIdle()
	if err != nil {
		return res, errors.Wrap(err, "failed to wait for transfer queue idle")
	}

	return res, nil
}

// CopyFromBuffer behaves as CopyFrom with another Buffer as the source. The source must be
// at least Size() bytes long.
func (b *Buffer) CopyFromBuffer(src *Buffer, transferQueue core1_0.Queue, transferPool core1_0.CommandPool) (common.VkResult, error) {
	if !src.Initialized() {
		return core1_0.VKErrorUnknown, errors.New("attempted to copy from an uninitialized buffer")
	}

	return b.CopyFrom(src.buffer, transferQueue, transferPool)
}
