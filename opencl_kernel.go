package work

// DeviceInfo describes an OpenCL device.
type DeviceInfo struct {
	Platform     int
	Device       int
	PlatformName string
	Name         string
	ComputeUnits int
}

const openCLKernelName = "nano_work"

// openCLKernelSource searches global_size nonces starting at *attempt. Each
// lane hashes nonce_le8 || root with blake2b (8 byte digest) and writes its
// nonce to *result when the digest read as a little endian integer reaches
// *threshold. A zero result means no lane succeeded.
const openCLKernelSource = `
__constant ulong IV[8] = {
	0x6a09e667f3bcc908UL, 0xbb67ae8584caa73bUL,
	0x3c6ef372fe94f82bUL, 0xa54ff53a5f1d36f1UL,
	0x510e527fade682d1UL, 0x9b05688c2b3e6c1fUL,
	0x1f83d9abfb41bd6bUL, 0x5be0cd19137e2179UL
};

__constant uchar SIGMA[12][16] = {
	{  0,  1,  2,  3,  4,  5,  6,  7,  8,  9, 10, 11, 12, 13, 14, 15 },
	{ 14, 10,  4,  8,  9, 15, 13,  6,  1, 12,  0,  2, 11,  7,  5,  3 },
	{ 11,  8, 12,  0,  5,  2, 15, 13, 10, 14,  3,  6,  7,  1,  9,  4 },
	{  7,  9,  3,  1, 13, 12, 11, 14,  2,  6,  5, 10,  4,  0, 15,  8 },
	{  9,  0,  5,  7,  2,  4, 10, 15, 14,  1, 11, 12,  6,  8,  3, 13 },
	{  2, 12,  6, 10,  0, 11,  8,  3,  4, 13,  7,  5, 15, 14,  1,  9 },
	{ 12,  5,  1, 15, 14, 13,  4, 10,  0,  7,  6,  3,  9,  2,  8, 11 },
	{ 13, 11,  7, 14, 12,  1,  3,  9,  5,  0, 15,  4,  8,  6,  2, 10 },
	{  6, 15, 14,  9, 11,  3,  0,  8, 12,  2, 13,  7,  1,  4, 10,  5 },
	{ 10,  2,  8,  4,  7,  6,  1,  5, 15, 11,  9, 14,  3, 12, 13,  0 },
	{  0,  1,  2,  3,  4,  5,  6,  7,  8,  9, 10, 11, 12, 13, 14, 15 },
	{ 14, 10,  4,  8,  9, 15, 13,  6,  1, 12,  0,  2, 11,  7,  5,  3 }
};

#define ROTR64(x, n) rotate((x), (ulong)(64 - (n)))

#define G(r, i, a, b, c, d)                       \
	do {                                          \
		a = a + b + m[SIGMA[r][2 * i]];           \
		d = ROTR64(d ^ a, 32);                    \
		c = c + d;                                \
		b = ROTR64(b ^ c, 24);                    \
		a = a + b + m[SIGMA[r][2 * i + 1]];       \
		d = ROTR64(d ^ a, 16);                    \
		c = c + d;                                \
		b = ROTR64(b ^ c, 63);                    \
	} while (0)

__kernel void nano_work(__global const uchar *root,
                        __global const ulong *threshold,
                        __global const ulong *attempt,
                        __global ulong *result)
{
	const ulong nonce = *attempt + get_global_id(0);
	ulong m[16];
	ulong v[16];

	m[0] = nonce;
	for (int i = 0; i < 4; i++) {
		ulong w = 0;
		for (int j = 7; j >= 0; j--) {
			w = (w << 8) | (ulong)root[i * 8 + j];
		}
		m[i + 1] = w;
	}
	for (int i = 5; i < 16; i++) {
		m[i] = 0;
	}

	for (int i = 0; i < 8; i++) {
		v[i] = IV[i];
		v[i + 8] = IV[i];
	}
	v[0] ^= 0x01010008UL;
	v[12] ^= 40UL;
	v[14] = ~v[14];

	for (int r = 0; r < 12; r++) {
		G(r, 0, v[0], v[4], v[8], v[12]);
		G(r, 1, v[1], v[5], v[9], v[13]);
		G(r, 2, v[2], v[6], v[10], v[14]);
		G(r, 3, v[3], v[7], v[11], v[15]);
		G(r, 4, v[0], v[5], v[10], v[15]);
		G(r, 5, v[1], v[6], v[11], v[12]);
		G(r, 6, v[2], v[7], v[8], v[13]);
		G(r, 7, v[3], v[4], v[9], v[14]);
	}

	const ulong digest = IV[0] ^ 0x01010008UL ^ v[0] ^ v[8];
	if (digest >= *threshold) {
		*result = nonce;
	}
}
`
