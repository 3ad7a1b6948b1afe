package compiler

// builtinGovernanceSource is the static governance contract source shipped
// with the node binary, used to bootstrap C5's distinguished governance
// slot on first Init. It is a minimal contract: its logic is
// out of scope here (contract evaluation is an explicit non-goal of this
// repository) — what matters is that it compiles, AOT-precompiles, and
// imports exactly the fixed SDK set.
const builtinGovernanceSource = `
// Built-in governance contract. Mediates membership, role and quorum
// changes for a governance document; the state-transition logic itself is
// owned by the evaluator layer and out of scope here.
extern "C" {
    fn alloc(len: u32) -> u32;
    fn write_byte(ptr: u32, offset: u32, data: u8);
    fn pointer_len(ptr: u32) -> u32;
    fn read_byte(index: u32) -> u8;
}

#[no_mangle]
pub unsafe extern "C" fn main_function(state_ptr: u32, _event_ptr: u32) -> u32 {
    let len = pointer_len(state_ptr);
    let out = alloc(len);
    for i in 0..len {
        write_byte(out, i, read_byte(state_ptr + i));
    }
    out
}
`
