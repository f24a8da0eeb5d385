package cluster

// evalSentinelKey routes EVAL/EVALSHA calls with nkeys == 0 to a fixed
// slot, since such scripts carry no key to hash. Per spec.md §6, callers
// needing deterministic targeting for a zero-key script must pre-route it
// themselves; this sentinel only keeps the call from erroring out.
const evalSentinelKey = "rcluster-eval-sentinel"

// Eval implements the EVAL contract from spec.md §6: call shape is
// eval(script, nkeys, key1, arg1, arg2, …). nkeys > 1 is rejected because a
// single slot can't be guaranteed across multiple keys in a cluster.
func (c *Client) Eval(script string, nkeys int, keysAndArgs ...interface{}) (interface{}, error) {
	return c.evalLike("EVAL", script, nkeys, keysAndArgs)
}

// EvalSha is Eval's counterpart for a cached script SHA.
func (c *Client) EvalSha(sha string, nkeys int, keysAndArgs ...interface{}) (interface{}, error) {
	return c.evalLike("EVALSHA", sha, nkeys, keysAndArgs)
}

func (c *Client) evalLike(cmd, scriptOrSha string, nkeys int, keysAndArgs []interface{}) (interface{}, error) {
	if nkeys > 1 {
		return nil, newError(EvalKeysInvalid, nil, "nkeys=%d: cluster scripts must target a single slot", nkeys)
	}
	if nkeys < 0 {
		return nil, newError(EvalKeysInvalid, nil, "nkeys=%d: must be 0 or 1", nkeys)
	}

	key := evalSentinelKey
	if nkeys == 1 {
		if len(keysAndArgs) < 1 {
			return nil, newError(EvalKeysInvalid, nil, "nkeys=1 but no key argument given")
		}
		k, ok := keysAndArgs[0].(string)
		if !ok {
			return nil, newError(EvalKeysInvalid, nil, "key1 must be a string")
		}
		key = k
	}

	args := make([]interface{}, 0, len(keysAndArgs)+2)
	args = append(args, scriptOrSha, nkeys)
	args = append(args, keysAndArgs...)

	c.pipeMu.Lock()
	if c.pipelining {
		idx := len(c.pipelineBuf)
		c.pipelineBuf = append(c.pipelineBuf, pipelineItem{Cmd: cmd, Key: key, Args: args, OriginIndex: idx})
		c.pipeMu.Unlock()
		return nil, nil
	}
	c.pipeMu.Unlock()

	return c.executeFrom(cmd, key, args, nil)
}
