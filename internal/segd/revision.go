package segd

import "encoding/binary"

// Profile is the decoder configuration selected for one record revision.
// It is passed by value to every decoder that depends on the revision.
type Profile struct {
	Revision          int
	Minor             int
	GeneralBlocks     int
	ChannelSetSize    int
	ChannelSet        Layout
	TraceHeader       Layout
	Extension1        Layout
	RequireGH3        bool
	RequireExtension1 bool
	SampleOrder       binary.ByteOrder
}

var profiles = [...]Profile{
	{
		Revision:       0,
		ChannelSetSize: BlockSize,
		ChannelSet:     ChannelSetLayout,
		TraceHeader:    TraceHeaderLayout,
		Extension1:     TraceExtension1Layout,
		SampleOrder:    binary.BigEndian,
	},
	{
		Revision:       1,
		ChannelSetSize: BlockSize,
		ChannelSet:     ChannelSetLayout,
		TraceHeader:    TraceHeaderLayout,
		Extension1:     TraceExtension1Layout,
		SampleOrder:    binary.BigEndian,
	},
	{
		Revision:          2,
		ChannelSetSize:    BlockSize,
		ChannelSet:        ChannelSetLayout,
		TraceHeader:       TraceHeaderLayout,
		Extension1:        TraceExtension1Layout,
		RequireExtension1: true,
		SampleOrder:       binary.BigEndian,
	},
	{
		Revision:          3,
		ChannelSetSize:    ChannelSetSizeV3,
		ChannelSet:        ChannelSetLayoutV3,
		TraceHeader:       TraceHeaderLayout,
		Extension1:        TraceExtension1Layout,
		RequireGH3:        true,
		RequireExtension1: true,
		SampleOrder:       binary.BigEndian,
	},
}

// ProfileFor returns the base profile of a revision.
func ProfileFor(rev int) (Profile, error) {
	if rev < 0 || rev >= len(profiles) {
		err := newError(ErrUnsupportedRevision, 0, "revision %d", rev)
		err.Revision = rev
		return Profile{}, err
	}
	return profiles[rev], nil
}

// ResolveRevision inspects the general headers at the start of buf and
// selects the matching profile. Unknown revisions fail; there is no
// fallback layout.
func ResolveRevision(buf []byte) (Profile, error) {
	c := NewCursor(buf)
	gh1, err := c.Peek(BlockSize)
	if err != nil {
		return Profile{}, annotate(err, GeneralHeader1Layout.Name, "", NotSet)
	}
	additional := int(gh1[11] >> 4)
	if additional == 0 {
		p := profiles[0]
		p.GeneralBlocks = 1
		return p, nil
	}
	if err := c.Skip(BlockSize); err != nil {
		return Profile{}, err
	}
	gh2, err := c.Peek(BlockSize)
	if err != nil {
		return Profile{}, annotate(err, GeneralHeader2Layout.Name, "", NotSet)
	}
	major, minor := int(gh2[10]), int(gh2[11])
	if major < 1 || major > 3 {
		e := newError(ErrUnsupportedRevision, BlockSize+10, "revision %d.%d", major, minor)
		e.Header = GeneralHeader2Layout.Name
		e.Field = "revision_major"
		e.Revision = major
		return Profile{}, e
	}
	if additional == 0x0f {
		additional = int(binary.BigEndian.Uint16(gh2[22:24]))
	}
	p := profiles[major]
	p.Minor = minor
	p.GeneralBlocks = 1 + additional
	if p.RequireGH3 && p.GeneralBlocks < 3 {
		e := newError(ErrMalformedHeader, 11, "revision %d requires general header #3, %d blocks declared", major, p.GeneralBlocks)
		e.Header = GeneralHeader1Layout.Name
		e.Field = "additional_blocks"
		e.Revision = major
		return Profile{}, e
	}
	return p, nil
}
