package message

// SequenceHeader precedes the body of every OPN, MSG and CLO message.
type SequenceHeader struct {
	// SequenceNumber increases by one for every chunk sent on the channel.
	SequenceNumber uint32

	// RequestID correlates a response with its request.
	RequestID uint32
}

// Decode reads the sequence header at the cursor of b.
func (h *SequenceHeader) Decode(b *Buffer) error {
	sn, err := b.ReadUint32()
	if err != nil {
		return err
	}
	id, err := b.ReadUint32()
	if err != nil {
		return err
	}
	h.SequenceNumber = sn
	h.RequestID = id
	return nil
}

// EncodeAt overwrites the reserved sequence header at off in b.
func (h *SequenceHeader) EncodeAt(b *Buffer, off int) error {
	if err := b.PutUint32At(off, h.SequenceNumber); err != nil {
		return err
	}
	return b.PutUint32At(off+4, h.RequestID)
}
