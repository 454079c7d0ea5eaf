package runtime

// The runtime module is always source index 0. It is parsed and scanned like
// any other module, so tree shaking only keeps the helpers that the
// finalizer actually calls. Every helper that generated code refers to is an
// export, which lets the finalizer find its canonical name through the
// module's named exports.

import (
	"github.com/hoistjs/hoist/internal/logger"
)

const Code = `
var __create = Object.create;
var __defProp = Object.defineProperty;
var __getProtoOf = Object.getPrototypeOf;
var __getOwnPropNames = Object.getOwnPropertyNames;
var __hasOwnProp = Object.prototype.hasOwnProperty;
var __markAsModule = (target) => __defProp(target, "__esModule", { value: true });

// Wraps a CommonJS closure and returns a require() function
export var __commonJS = (callback, module) => () => {
	if (!module) {
		module = { exports: {} };
		callback(module.exports, module);
	}
	return module.exports;
};

// Used to implement ES6 exports on a namespace object
export var __export = (target, all) => {
	for (var name in all)
		__defProp(target, name, { get: all[name], enumerable: true });
};

export var __reExport = (target, module) => {
	if (module && typeof module === "object" || typeof module === "function")
		for (var key of __getOwnPropNames(module))
			if (!__hasOwnProp.call(target, key) && key !== "default")
				__defProp(target, key, { get: () => module[key], enumerable: true });
	return target;
};

// Converts the module from CommonJS to ES6 if necessary
export var __toESM = (module) => {
	if (module && module.__esModule)
		return module;
	return __reExport(__defProp(module != null ? __create(__getProtoOf(module)) : {}, "default", { value: module, enumerable: true }), module);
};

// Converts the module from ES6 to CommonJS
export var __toCommonJS = (module) => __reExport(__markAsModule({}), module);

// Used to implement "import()" of a bundled module
export var __import = (callback) => Promise.resolve().then(callback);
`

// The module registry of the "app" format. Every module is registered as a
// factory with "define" and evaluated lazily by "require". A hot patch calls
// "patch" with the ids of the changed modules and a function that defines
// their new factories. Modules that called "module.hot.accept()" are
// boundaries: the changed modules and every module between them and a
// boundary are evaluated again, and the boundary is re-required.
const AppCode = `
var hoist_runtime = self.hoist_runtime = {
	patching: false,
	patchedModuleFactoryMap: {},
	executeModuleStack: [],
	moduleCache: {},
	moduleFactoryMap: {},
	define: function (id, factory) {
		if (this.patching) {
			this.patchedModuleFactoryMap[id] = factory;
		} else {
			this.moduleFactoryMap[id] = factory;
		}
	},
	require: function (id) {
		var stack = this.executeModuleStack;
		var parent = stack.length > 0 ? stack[stack.length - 1] : null;
		var module = this.moduleCache[id];
		if (module) {
			if (module.parents.indexOf(parent) === -1) {
				module.parents.push(parent);
			}
			return module.exports;
		}
		var factory = this.moduleFactoryMap[id];
		if (!factory) {
			throw new Error("Module not found: " + id);
		}
		module = this.moduleCache[id] = {
			exports: {},
			parents: [parent],
			hot: {
				selfAccept: false,
				acceptCallbacks: [],
				accept: function (callback) {
					this.selfAccept = true;
					if (callback && typeof callback === "function") {
						this.acceptCallbacks.push({ deps: [id], callback: callback });
					}
				}
			}
		};
		stack.push(id);
		try {
			factory(this.require.bind(this), module, module.exports);
		} finally {
			stack.pop();
		}
		return module.exports;
	},
	patch: function (updateModuleIds, callback) {
		var runtime = this;
		var boundaries = [];
		var invalidModuleIds = [];
		var acceptCallbacks = [];

		this.patching = true;
		try {
			callback();
		} finally {
			this.patching = false;
		}

		for (var i = 0; i < updateModuleIds.length; i++) {
			collect(updateModuleIds[i]);
		}
		for (var i = 0; i < invalidModuleIds.length; i++) {
			delete this.moduleCache[invalidModuleIds[i]];
		}
		for (var id in this.patchedModuleFactoryMap) {
			this.moduleFactoryMap[id] = this.patchedModuleFactoryMap[id];
		}
		this.patchedModuleFactoryMap = {};
		for (var i = 0; i < boundaries.length; i++) {
			this.require(boundaries[i]);
		}
		for (var i = 0; i < acceptCallbacks.length; i++) {
			var item = acceptCallbacks[i];
			item.callback.apply(null, item.deps.map(function (dep) {
				return runtime.moduleCache[dep].exports;
			}));
		}

		function collect(updateModuleId) {
			var queue = [{ moduleId: updateModuleId, chain: [updateModuleId] }];
			var visited = {};
			while (queue.length > 0) {
				var item = queue.pop();
				var moduleId = item.moduleId;
				var chain = item.chain;
				if (moduleId === null || visited[moduleId]) {
					continue;
				}
				visited[moduleId] = true;
				var module = runtime.moduleCache[moduleId];
				if (!module) {
					continue;
				}
				if (module.hot.selfAccept) {
					if (boundaries.indexOf(moduleId) === -1) {
						boundaries.push(moduleId);
						for (var j = 0; j < module.hot.acceptCallbacks.length; j++) {
							var accept = module.hot.acceptCallbacks[j];
							if (accept.deps.indexOf(updateModuleId) !== -1) {
								acceptCallbacks.push(accept);
							}
						}
					}
					for (var j = 0; j < chain.length; j++) {
						if (invalidModuleIds.indexOf(chain[j]) === -1) {
							invalidModuleIds.push(chain[j]);
						}
					}
					continue;
				}
				for (var j = 0; j < module.parents.length; j++) {
					var parent = module.parents[j];
					queue.push({ moduleId: parent, chain: chain.concat([parent]) });
				}
			}
		}
	},
	loadScript: function (url) {
		var script = document.createElement("script");
		script.src = url;
		script.onerror = function () {
			console.error("Failed to load script: " + url);
		};
		document.body.appendChild(script);
	},
	connect: function (url) {
		var socket = new WebSocket(url);
		socket.onmessage = function (event) {
			var data = JSON.parse(event.data);
			if (data.type === "update") {
				hoist_runtime.loadScript(data.url);
			}
		};
		return socket;
	}
};
`

// The names of the helpers the finalizer may call
const (
	CommonJS   = "__commonJS"
	Export     = "__export"
	ReExport   = "__reExport"
	ToESM      = "__toESM"
	ToCommonJS = "__toCommonJS"
	Import     = "__import"
)

// The name of the registry object of the "app" format
const Registry = "hoist_runtime"

func Source() logger.Source {
	return logger.Source{
		Index:          0,
		KeyPath:        logger.Path{Text: "<runtime>", Namespace: "runtime"},
		PrettyPath:     "<runtime>",
		IdentifierName: "runtime",
		Contents:       Code,
	}
}
