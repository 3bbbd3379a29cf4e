package adapter

// Child-side runner scripts for the server-side runtimes. Each loads the
// module named by WASM_HARNESS_MODULE, runs the test exports, and speaks
// the envelope schema over stdout as JSON lines. Per-function call glue is
// generated elsewhere; these scripts only drive the test entry points.

const runnerCommon = `
const CONTEXT = env('WASM_HARNESS_CONTEXT');
let seq = 0;
let batch = [];
const send = (msg) => writeLine(JSON.stringify(msg));
const flush = () => {
  if (batch.length === 0) return;
  send({ kind: 'log', context_id: CONTEXT, events: batch });
  batch = [];
};
const log = (stream, payload) => {
  batch.push({ context_id: CONTEXT, stream, seq: ++seq, payload: String(payload), time: new Date().toISOString() });
  if (batch.length >= 64) flush();
};
console.log = (...a) => log(0, a.join(' '));
console.error = (...a) => log(1, a.join(' '));
const panic = (err) => {
  flush();
  send({ kind: 'panic', context_id: CONTEXT, panic: { context_id: CONTEXT, message: String(err && err.message || err), stack: String(err && err.stack || '') } });
};
const run = async (bytes) => {
  send({ kind: 'spawn-ack', context_id: CONTEXT });
  const { instance } = await WebAssembly.instantiate(bytes, {});
  const start = instance.exports._initialize || instance.exports.__wbindgen_start || instance.exports._start;
  if (start) start();
  let failed = false;
  for (const name of Object.keys(instance.exports)) {
    if (!name.startsWith('__wbgt_')) continue;
    const pretty = name.slice(7);
    console.log('test ' + pretty + ' ...');
    try {
      instance.exports[name]();
      console.log('test ' + pretty + ' ok');
    } catch (err) {
      console.error('test ' + pretty + ' failed: ' + err);
      failed = true;
    }
  }
  flush();
  send({ kind: 'result', context_id: CONTEXT, status: failed ? 1 : 0 });
};
`

const runnerNodeCJS = `
const fs = require('node:fs');
const env = (k) => process.env[k];
const writeLine = (s) => process.stdout.write(s + '\n');
` + runnerCommon + `
run(fs.readFileSync(env('WASM_HARNESS_MODULE'))).catch((err) => { panic(err); process.exit(0); });
`

const runnerNodeESM = `
import fs from 'node:fs';
const env = (k) => process.env[k];
const writeLine = (s) => process.stdout.write(s + '\n');
` + runnerCommon + `
run(fs.readFileSync(env('WASM_HARNESS_MODULE'))).catch((err) => { panic(err); process.exit(0); });
`

const runnerDeno = `
const env = (k) => Deno.env.get(k);
const encoder = new TextEncoder();
const writeLine = (s) => Deno.stdout.writeSync(encoder.encode(s + '\n'));
` + runnerCommon + `
run(Deno.readFileSync(env('WASM_HARNESS_MODULE'))).catch((err) => { panic(err); Deno.exit(0); });
`
