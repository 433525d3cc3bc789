package memalloc

// Every allocator keeps its root state in a fixed header at offset 0 of
// the arena. Offset 0 is therefore never a payload and doubles as Nil.
const (
	metaMagic = 0
	metaTotal = 8
	// first-fit / best-fit: block list head
	metaHead = 16
	// first-fit: bump cursor of the default chunk source
	metaUsed = 24
	// best-fit: end of the block region
	metaEnd = 24

	listMetaSize = 32

	// slab: lowest carved page, pages grow down from the arena end
	metaTail = 16
	// slab: one page list head per size class
	metaClasses = 24
)

const (
	magicFirstFit = uint64(0x6669727374666974)
	magicBestFit  = uint64(0x6265737466697421)
	magicSlab     = uint64(0x736c616273736c62)
)

func (a arena) initMeta(magic, size uint64) {
	clear(a[:size])
	a.put64(metaMagic, magic)
	a.put64(metaTotal, uint64(len(a)))
}

func (a arena) checkMeta(magic uint64) error {
	if a == nil {
		return ErrDestroyed
	}
	if a.u64(metaMagic) != magic || a.u64(metaTotal) != uint64(len(a)) {
		return ErrCorrupt
	}
	return nil
}
